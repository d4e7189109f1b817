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
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Req any, Resp any](c *Client, method string, req Req) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(serviceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Send submits a wire command. A rejected command is not an RPC error;
// check Accepted.
func (c *Client) Send(wire map[string]string) (*SendResponse, error) {
	return call[SendRequest, SendResponse](c, "Send", SendRequest{Wire: wire})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusRequest, StatusResponse](c, "Status", StatusRequest{})
}

// History lists recent jobs.
func (c *Client) History(limit int) (*HistoryResponse, error) {
	return call[HistoryRequest, HistoryResponse](c, "History", HistoryRequest{Limit: limit})
}

// JobDescribe fetches a single job.
func (c *Client) JobDescribe(id string) (*JobDescribeResponse, error) {
	return call[JobDescribeRequest, JobDescribeResponse](c, "JobDescribe", JobDescribeRequest{ID: id})
}

// HistoryClear removes finished jobs.
func (c *Client) HistoryClear() (*HistoryClearResponse, error) {
	return call[HistoryClearRequest, HistoryClearResponse](c, "HistoryClear", HistoryClearRequest{})
}

// Objects lists printable objects.
func (c *Client) Objects() (*ObjectsResponse, error) {
	return call[ObjectsRequest, ObjectsResponse](c, "Objects", ObjectsRequest{})
}

// Variables fetches the persisted job parameters.
func (c *Client) Variables() (*VariablesResponse, error) {
	return call[VariablesRequest, VariablesResponse](c, "Variables", VariablesRequest{})
}
