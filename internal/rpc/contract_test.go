package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSelector_KnownSignatures(t *testing.T) {
	cases := map[string]string{
		"supportsInterface(bytes4)": "0x01ffc9a7",
		"tokenURI(uint256)":         "0xc87b56dd",
		"uri(uint256)":              "0x0e89341c",
		"name()":                    "0x06fdde03",
		"symbol()":                  "0x95d89b41",
		"owner()":                   "0x8da5cb5b",
		"contractURI()":             "0xe8a3d485",
	}

	for sig, want := range cases {
		if got := Selector(sig); got != want {
			t.Errorf("Selector(%q) = %s, want %s", sig, got, want)
		}
	}
}

func TestEncodeCall_Uint256(t *testing.T) {
	data, err := EncodeCall("tokenURI(uint256)", big.NewInt(255))
	if err != nil {
		t.Fatalf("EncodeCall failed: %v", err)
	}

	want := "0xc87b56dd" + strings.Repeat("0", 62) + "ff"
	if data != want {
		t.Errorf("EncodeCall = %s, want %s", data, want)
	}
}

func TestEncodeCall_Bytes4IsRightPadded(t *testing.T) {
	data, err := EncodeCall("supportsInterface(bytes4)", ERC721InterfaceID)
	if err != nil {
		t.Fatalf("EncodeCall failed: %v", err)
	}

	want := "0x01ffc9a7" + "80ac58cd" + strings.Repeat("0", 56)
	if data != want {
		t.Errorf("EncodeCall = %s, want %s", data, want)
	}
}

func TestEncodeCall_RejectsUnsupportedArgs(t *testing.T) {
	if _, err := EncodeCall("foo(uint8)", 7); err == nil {
		t.Error("expected error for unsupported argument type")
	}
	if _, err := EncodeCall("foo(uint256)", big.NewInt(-1)); err == nil {
		t.Error("expected error for negative uint256")
	}
	if _, err := EncodeCall("foo(bytes4)", "80ac58cd"); err == nil {
		t.Error("expected error for unprefixed hex argument")
	}
}

// encodeStringResult builds an ABI-encoded string result as a contract would
// return it: offset word, length word, then right-padded data.
func encodeStringResult(s string) string {
	payload := hex.EncodeToString([]byte(s))
	for len(payload)%64 != 0 {
		payload += "0"
	}
	offset := fmt.Sprintf("%064x", 32)
	length := fmt.Sprintf("%064x", len(s))
	return "0x" + offset + length + payload
}

func TestDecodeString(t *testing.T) {
	encoded := encodeStringResult("ipfs://QmHash/42.json")
	if got := DecodeString(encoded); got != "ipfs://QmHash/42.json" {
		t.Errorf("DecodeString = %q, want %q", got, "ipfs://QmHash/42.json")
	}

	if got := DecodeString("0x"); got != "" {
		t.Errorf("DecodeString of empty result = %q, want empty", got)
	}
	if got := DecodeString("0xdeadbeef"); got != "" {
		t.Errorf("DecodeString of short result = %q, want empty", got)
	}
}

func TestDecodeBool(t *testing.T) {
	trueWord := "0x" + strings.Repeat("0", 63) + "1"
	falseWord := "0x" + strings.Repeat("0", 64)

	if !DecodeBool(trueWord) {
		t.Error("DecodeBool(true word) = false")
	}
	if DecodeBool(falseWord) {
		t.Error("DecodeBool(false word) = true")
	}
	if DecodeBool("0x") {
		t.Error("DecodeBool of empty result = true")
	}
}

func TestDecodeAddress(t *testing.T) {
	word := "0x" + strings.Repeat("0", 24) + "AB5801A7D398351B8BE11C439E05C5B3259AEC9B"
	want := "0xab5801a7d398351b8be11c439e05c5b3259aec9b"
	if got := DecodeAddress(word); got != want {
		t.Errorf("DecodeAddress = %q, want %q", got, want)
	}

	zero := "0x" + strings.Repeat("0", 64)
	if got := DecodeAddress(zero); got != "" {
		t.Errorf("DecodeAddress of zero address = %q, want empty", got)
	}
}

func TestClient_Call(t *testing.T) {
	var gotData string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req JSONRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode RPC request: %v", err)
		}
		if req.Method != "eth_call" {
			t.Errorf("unexpected method %s", req.Method)
		}

		params := req.Params.([]interface{})
		callObj := params[0].(map[string]interface{})
		gotData = callObj["data"].(string)

		result := encodeStringResult("Example Collection")
		json.NewEncoder(w).Encode(JSONRPCResponse{JSONRPC: "2.0", Result: json.RawMessage(`"` + result + `"`), ID: 1})
	}))
	defer ts.Close()

	client := NewClient(ts.URL)
	result, err := client.Call(context.Background(), "0xab5801a7d398351b8be11c439e05c5b3259aec9b", "name()")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	if gotData != "0x06fdde03" {
		t.Errorf("calldata = %s, want 0x06fdde03", gotData)
	}
	if got := DecodeString(result); got != "Example Collection" {
		t.Errorf("decoded result = %q, want %q", got, "Example Collection")
	}
}

func TestClient_Call_RPCError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(JSONRPCResponse{
			JSONRPC: "2.0",
			Error:   &JSONRPCError{Code: -32000, Message: "execution reverted"},
			ID:      1,
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL)
	_, err := client.Call(context.Background(), "0xab5801a7d398351b8be11c439e05c5b3259aec9b", "owner()")
	if err == nil {
		t.Fatal("expected error for reverted call")
	}
	if !strings.Contains(err.Error(), "execution reverted") {
		t.Errorf("error %q does not mention revert", err)
	}
}
