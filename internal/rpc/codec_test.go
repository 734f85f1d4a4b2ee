package rpc

import (
	"testing"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestCodecProtoMessages(t *testing.T) {
	var c Codec

	data, err := c.Marshal(wrapperspb.Int64(42))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	// protojson encodes int64 wrappers as strings.
	if string(data) != `"42"` {
		t.Errorf("Marshal() = %s, want \"42\"", data)
	}

	var empty emptypb.Empty
	if err := c.Unmarshal(nil, &empty); err != nil {
		t.Errorf("Unmarshal(empty body) error = %v", err)
	}
	if err := c.Unmarshal([]byte(`{"unexpected":1}`), &empty); err != nil {
		t.Errorf("Unmarshal(unknown field) error = %v", err)
	}
}

func TestCodecPlainMessages(t *testing.T) {
	var c Codec
	business := int64(7)

	data, err := c.Marshal(&UseCampaignRequest{AssignmentID: 3, BusinessID: &business})
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"assignment_id":3,"business_id":7}`; string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	var req UseCampaignRequest
	if err := c.Unmarshal([]byte(`{"assignment_id":9}`), &req); err != nil {
		t.Fatal(err)
	}
	if req.AssignmentID != 9 || req.BusinessID != nil {
		t.Errorf("Unmarshal() = %+v", req)
	}
}
