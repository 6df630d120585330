package syncservice

import (
	"errors"
	"strings"
	"testing"
)

func validPush() PushRequest {
	return PushRequest{
		WarehouseID: "wh-1",
		DeviceID:    "device-1",
		Commands: []Command{
			{CommandID: "cmd-000001", Type: "box.create", Payload: map[string]any{}},
		},
	}
}

func TestPushRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PushRequest)
		wantMsg string
	}{
		{"valid", func(r *PushRequest) {}, ""},
		{"missing warehouse", func(r *PushRequest) { r.WarehouseID = "" }, "warehouse_id"},
		{"device too short", func(r *PushRequest) { r.DeviceID = "ab" }, "device_id"},
		{"device too long", func(r *PushRequest) { r.DeviceID = strings.Repeat("d", 129) }, "device_id"},
		{"no commands", func(r *PushRequest) { r.Commands = nil }, "commands"},
		{"command id too short", func(r *PushRequest) { r.Commands[0].CommandID = "short" }, "command_id"},
		{"command id too long", func(r *PushRequest) { r.Commands[0].CommandID = strings.Repeat("c", 65) }, "command_id"},
		{"type too short", func(r *PushRequest) { r.Commands[0].Type = "ab" }, "command type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validPush()
			tt.mutate(&req)

			err := req.Validate()
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var bad *BadRequestError
			if !errors.As(err, &bad) {
				t.Fatalf("Validate() = %v, want BadRequestError", err)
			}
			if !strings.Contains(bad.Msg, tt.wantMsg) {
				t.Errorf("error %q does not mention %q", bad.Msg, tt.wantMsg)
			}
		})
	}
}
