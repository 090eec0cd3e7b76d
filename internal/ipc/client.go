package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Predictra.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Predictra.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Predictra.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MachineCreate registers a new machine.
func (c *Client) MachineCreate(req MachineCreateRequest) (*MachineCreateResponse, error) {
	var resp MachineCreateResponse
	if err := c.client.Call("Predictra.MachineCreate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MachineList returns machines, optionally filtered by owner.
func (c *Client) MachineList(ownerID string) (*MachineListResponse, error) {
	var resp MachineListResponse
	if err := c.client.Call("Predictra.MachineList", MachineListRequest{OwnerID: ownerID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MachineDescribe returns details for a single machine.
func (c *Client) MachineDescribe(id string) (*MachineDescribeResponse, error) {
	var resp MachineDescribeResponse
	if err := c.client.Call("Predictra.MachineDescribe", MachineDescribeRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MachineRemove deletes a machine.
func (c *Client) MachineRemove(id string) (*MachineRemoveResponse, error) {
	var resp MachineRemoveResponse
	if err := c.client.Call("Predictra.MachineRemove", MachineRemoveRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Train starts a background training run.
func (c *Client) Train(req TrainRequest) (*TrainResponse, error) {
	var resp TrainResponse
	if err := c.client.Call("Predictra.Train", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TrainingStatus polls run state for a machine.
func (c *Client) TrainingStatus(req TrainingStatusRequest) (*TrainingStatusResponse, error) {
	var resp TrainingStatusResponse
	if err := c.client.Call("Predictra.TrainingStatus", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Predict runs a synchronous prediction.
func (c *Client) Predict(req PredictRequest) (*PredictResponse, error) {
	var resp PredictResponse
	if err := c.client.Call("Predictra.Predict", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
