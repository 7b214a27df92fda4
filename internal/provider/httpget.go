package provider

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"
)

type getResult struct {
	status int
	body   []byte
	err    error
}

// GetBody issues a GET and returns the status code and a copy of the body.
// The request runs in its own goroutine so a cancelled context returns
// promptly; request objects are owned and released by that goroutine.
func GetBody(ctx context.Context, client *fasthttp.Client, url string, headers map[string]string, timeout time.Duration) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	ch := make(chan getResult, 1)
	deadline := computeDeadline(ctx, timeout)
	go func() {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer func() {
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
		}()

		req.Header.SetMethod(fasthttp.MethodGet)
		req.SetRequestURI(url)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		if err := client.DoDeadline(req, resp, deadline); err != nil {
			ch <- getResult{err: err}
			return
		}
		body := append([]byte(nil), resp.Body()...)
		ch <- getResult{status: resp.StatusCode(), body: body}
	}()

	select {
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case r := <-ch:
		return r.status, r.body, r.err
	}
}

func computeDeadline(ctx context.Context, timeout time.Duration) time.Time {
	clientDL := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}
