package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// smartQueryPath is the ABCI query route for wasm smart contract queries.
const smartQueryPath = "/cosmwasm.wasm.v1.Query/SmartContractState"

type abciQueryResult struct {
	Response struct {
		Code  uint32 `json:"code"`
		Log   string `json:"log"`
		Value []byte `json:"value"`
	} `json:"response"`
}

// SmartQuery runs a synchronous smart query against a contract and
// unmarshals the JSON payload the contract returns into out.
func (c *Client) SmartQuery(ctx context.Context, contract string, query interface{}, out interface{}) error {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("failed to marshal smart query for %s: %w", contract, err)
	}

	data := encodeSmartQueryRequest(contract, queryJSON)

	var res abciQueryResult
	if err := c.call(ctx, &res, "abci_query", smartQueryPath, hex.EncodeToString(data), "0", false); err != nil {
		return err
	}
	if res.Response.Code != 0 {
		return fmt.Errorf("smart query on %s failed with code %d: %s", contract, res.Response.Code, res.Response.Log)
	}

	payload, err := decodeSmartQueryResponse(res.Response.Value)
	if err != nil {
		return fmt.Errorf("smart query on %s: %w", contract, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("failed to unmarshal smart query result from %s: %w", contract, err)
	}
	return nil
}

// encodeSmartQueryRequest frames a QuerySmartContractStateRequest:
// field 1 the contract address, field 2 the raw query JSON.
func encodeSmartQueryRequest(contract string, queryJSON []byte) []byte {
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendString(b, contract)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, queryJSON)
	return b
}

// decodeSmartQueryResponse unwraps field 1 (data) of a
// QuerySmartContractStateResponse.
func decodeSmartQueryResponse(raw []byte) ([]byte, error) {
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return nil, fmt.Errorf("malformed response tag: %w", protowire.ParseError(n))
		}
		raw = raw[n:]

		if num == 1 && typ == protowire.BytesType {
			data, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return nil, fmt.Errorf("malformed response data: %w", protowire.ParseError(n))
			}
			return data, nil
		}

		n = protowire.ConsumeFieldValue(num, typ, raw)
		if n < 0 {
			return nil, fmt.Errorf("malformed response field %d: %w", num, protowire.ParseError(n))
		}
		raw = raw[n:]
	}
	return nil, fmt.Errorf("response carries no data field")
}
