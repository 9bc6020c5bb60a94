package venus

import (
	"context"
	"errors"
	"fmt"
)

// Gateway is the set of device operations used by the rest of the bridge.
type Gateway interface {
	GetData(ctx context.Context) (Snapshot, error)
	GetBatteryStatus(ctx context.Context) (Snapshot, error)
	GetMode(ctx context.Context) (Snapshot, error)
	GetEnergyStatus(ctx context.Context) (Snapshot, error)
	SetMode(ctx context.Context, cmd Command) (bool, error)
}

var _ Gateway = (*Client)(nil)

func (c *Client) idParams() map[string]any {
	return map[string]any{"id": c.cfg.RPCID}
}

// GetBatteryStatus reads Bat.GetStatus. The result must carry "soc".
func (c *Client) GetBatteryStatus(ctx context.Context) (Snapshot, error) {
	snap, err := c.call(ctx, methodBatteryStatus, c.idParams())
	if err != nil {
		return nil, err
	}
	if err := snap.Require(FieldSOC); err != nil {
		return nil, fmt.Errorf("%s: %w", methodBatteryStatus, err)
	}
	return snap, nil
}

// GetMode reads ES.GetMode. The result must carry "mode".
func (c *Client) GetMode(ctx context.Context) (Snapshot, error) {
	snap, err := c.call(ctx, methodGetMode, c.idParams())
	if err != nil {
		return nil, err
	}
	if err := snap.Require(FieldMode); err != nil {
		return nil, fmt.Errorf("%s: %w", methodGetMode, err)
	}
	return snap, nil
}

// GetEnergyStatus reads ES.GetStatus.
func (c *Client) GetEnergyStatus(ctx context.Context) (Snapshot, error) {
	return c.call(ctx, methodEnergyStatus, c.idParams())
}

// GetData returns the combined telemetry snapshot.
//
// Battery status is mandatory: its failure fails the whole fetch. Mode and
// energy status are added when available; on a name clash the battery
// status value wins. The JSON-RPC component "id" is dropped.
func (c *Client) GetData(ctx context.Context) (Snapshot, error) {
	data, err := c.GetBatteryStatus(ctx)
	if err != nil {
		return nil, err
	}

	if mode, err := c.GetMode(ctx); err == nil {
		data.mergeMissing(mode)
	}
	if energy, err := c.GetEnergyStatus(ctx); err == nil {
		data.mergeMissing(energy)
	}

	delete(data, "id")
	return data, nil
}

// SetMode sends ES.SetMode once.
//
// It returns true when the device acknowledged with set_result=true. A
// reply with set_result=false returns (false, nil). No reply, or an error
// reply, returns false with the error. Invalid commands are rejected with
// ErrInvalidCommand before anything is sent.
func (c *Client) SetMode(ctx context.Context, cmd Command) (bool, error) {
	if cmd == nil {
		return false, fmt.Errorf("%w: nil command", ErrInvalidCommand)
	}
	if err := cmd.Validate(); err != nil {
		return false, err
	}

	params := map[string]any{
		"id":     c.cfg.RPCID,
		"config": cmd.config(),
	}

	result, err := c.call(ctx, methodSetMode, params)
	if err != nil {
		if errors.Is(err, ErrEmptyResult) {
			return false, nil
		}
		return false, err
	}

	ack, ok := result["set_result"].(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s: set_result missing", ErrMalformedResponse, methodSetMode)
	}
	return ack, nil
}
