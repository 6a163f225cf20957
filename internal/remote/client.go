// Package remote is the gRPC client of the membership aggregation service.
package remote

import (
	"context"
	"fmt"
	"sort"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	errs "github.com/usaschooldata/schooldata/internal/errors"
	"github.com/usaschooldata/schooldata/internal/logctx"
	"github.com/usaschooldata/schooldata/pkg/types"
)

// DetailGRPCCode is the error detail key carrying the gRPC status code.
const DetailGRPCCode = "grpc_code"

// DefaultTimeout bounds each remote call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Options configures a remote connection.
type Options struct {
	Address  string
	Timeout  time.Duration
	Insecure bool
}

// Client calls the membership aggregation service. It does not cache.
type Client struct {
	conn    grpc.ClientConnInterface
	closer  func() error
	timeout time.Duration
}

// Dial opens a client connection to the configured address. The
// connection is established lazily on the first call.
func Dial(opts Options) (*Client, error) {
	creds := credentials.NewTLS(nil)
	if opts.Insecure {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.NewClient(opts.Address, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, errs.NewTransportError("remote: dial "+opts.Address, err).
			WithDetails(map[string]interface{}{errs.DetailBackend: string(types.SourceRemote)})
	}
	c := NewClient(conn, opts.Timeout)
	c.closer = conn.Close
	return c, nil
}

// NewClient wraps an existing connection. A zero timeout uses DefaultTimeout.
func NewClient(conn grpc.ClientConnInterface, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{conn: conn, timeout: timeout}
}

// Close releases the connection if the client owns it.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// GetSummary returns one year of the entity, or nil when the service has
// no data for it.
func (c *Client) GetSummary(ctx context.Context, code types.EntityCode, year types.SchoolYear) (*types.YearRecord, error) {
	req := &GetMembershipSummaryRequest{NCESSCH: string(code), SchoolYear: string(year)}
	resp := &GetMembershipSummaryResponse{}
	found, err := c.invoke(ctx, methodGetMembershipSummary, req, resp, code, year)
	if err != nil || !found || resp.Summary == nil {
		return nil, err
	}
	rec := resp.Summary.Record
	if rec.SchoolYear == "" {
		rec.SchoolYear = year
	}
	return &rec, nil
}

// GetFullHistory returns every year of the entity, ascending. An entity
// the service does not know yields an empty history.
func (c *Client) GetFullHistory(ctx context.Context, code types.EntityCode) ([]types.YearRecord, error) {
	req := &GetMembershipRequest{NCESSCH: string(code)}
	resp := &GetMembershipResponse{}
	found, err := c.invoke(ctx, methodGetMembership, req, resp, code, types.AllYears)
	if err != nil || !found {
		return nil, err
	}
	out := make([]types.YearRecord, 0, len(resp.ByYear))
	for _, rec := range resp.ByYear {
		out = append(out, rec.Record)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SchoolYear < out[j].SchoolYear })
	return out, nil
}

// invoke performs one unary call under the configured deadline. NotFound
// is reported as found=false with no error.
func (c *Client) invoke(ctx context.Context, method string, req, resp any, code types.EntityCode, year types.SchoolYear) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.conn.Invoke(ctx, method, req, resp, grpc.ForceCodec(Codec{}))
	if err == nil {
		return true, nil
	}
	st := status.Convert(err)
	if st.Code() == codes.NotFound {
		logger := logctx.FromContext(ctx)
		logger.Debug().
			Str("entity", string(code)).
			Str("method", method).
			Msg("remote has no data")
		return false, nil
	}
	details := errs.Scope(string(code), string(year), string(types.SourceRemote))
	details[DetailGRPCCode] = st.Code().String()
	return false, errs.NewTransportError(fmt.Sprintf("remote: %s failed: %s", method, st.Code()), err).WithDetails(details)
}
