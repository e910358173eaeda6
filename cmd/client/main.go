package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"

	"github.com/matst80/rendezvous/internal/obs"
	"github.com/matst80/rendezvous/internal/proto"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	obs.SetOutput(os.Stderr)
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// apiError is a non-2xx broker reply.
type apiError struct {
	Status int
	Body   proto.Error
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Body.Name, e.Body.Message)
}

type client struct {
	base string
	http *http.Client
}

func (c *client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil && method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	obs.Debug("client.request", obs.Fields{"method": method, "url": req.URL.String()})
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	if resp.StatusCode/100 == 2 {
		return resp, nil
	}
	defer resp.Body.Close()
	apiErr := &apiError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(resp.Body)
	if json.Unmarshal(raw, &apiErr.Body) != nil || apiErr.Body.Name == "" {
		apiErr.Body = proto.Error{Name: http.StatusText(resp.StatusCode), Message: strings.TrimSpace(string(raw))}
	}
	return nil, apiErr
}

func (c *client) postJSON(ctx context.Context, path string, v interface{}) (*http.Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(b))
}

func streamPath(id string, suffix ...string) string {
	return "/stream/" + url.PathEscape(id) + strings.Join(suffix, "")
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	cfg, rest, err := parseGlobal(args)
	if err != nil {
		return err
	}
	obs.EnableDebug(cfg.Debug)
	if len(rest) == 0 {
		return errors.New("missing command: create, send, recv, status, list or fail")
	}
	c := &client{base: cfg.Server, http: &http.Client{}}
	cmd, rest := rest[0], rest[1:]

	switch cmd {
	case "create":
		return c.create(ctx, rest, stdout)
	case "send":
		return c.send(ctx, rest, stdin)
	case "recv":
		return c.recv(ctx, rest, stdout)
	case "status":
		id, err := requireID(cmd, rest)
		if err != nil {
			return err
		}
		return c.printJSON(ctx, streamPath(id, "/status"), stdout)
	case "list":
		return c.printJSON(ctx, "/stream", stdout)
	case "fail":
		return c.fail(ctx, rest)
	}
	return errors.Errorf("unknown command %q", cmd)
}

func requireID(cmd string, args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", errors.Errorf("%s: missing stream id", cmd)
	}
	return args[0], nil
}

func (c *client) create(ctx context.Context, args []string, stdout io.Writer) error {
	download, upload := headerFlag{}, headerFlag{}
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.Var(download, "download-header", "header sent to the destination (name=value, repeatable)")
	fs.Var(upload, "upload-header", "header sent back to the source (name=value, repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resp, err := c.postJSON(ctx, "/stream", proto.CreateRequest{
		DownloadHeaders: proto.HeaderSet(download),
		UploadHeaders:   proto.HeaderSet(upload),
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var out proto.CreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return errors.Wrap(err, "decode create response")
	}
	_, err = fmt.Fprintln(stdout, out.Stream)
	return err
}

func (c *client) send(ctx context.Context, args []string, stdin io.Reader) error {
	id, err := requireID("send", args)
	if err != nil {
		return err
	}
	body := stdin
	if len(args) > 1 && args[1] != "-" {
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		body = f
	}
	resp, err := c.do(ctx, http.MethodPut, streamPath(id), body)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *client) recv(ctx context.Context, args []string, stdout io.Writer) error {
	id, err := requireID("recv", args)
	if err != nil {
		return err
	}
	out := stdout
	if len(args) > 1 && args[1] != "-" {
		f, err := os.Create(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	resp, err := c.do(ctx, http.MethodGet, streamPath(id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	n, err := io.Copy(out, resp.Body)
	obs.Debug("client.received", obs.Fields{"stream": id, "bytes": n})
	if err != nil {
		return errors.Wrap(err, "receive")
	}
	// a failure after the status line arrives as a marker at the end of the
	// body; the session status tells whether it completed
	return c.checkFinished(ctx, id)
}

// streamFailed reports a relay that ended in anything but FINISHED.
type streamFailed struct {
	State string
	Err   *proto.Error
}

func (e *streamFailed) Error() string {
	if e.Err == nil {
		return "stream ended in " + e.State
	}
	return fmt.Sprintf("stream ended in %s: %s: %s", e.State, e.Err.Name, e.Err.Message)
}

func (c *client) checkFinished(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodGet, streamPath(id, "/status"), nil)
	if err != nil {
		return errors.Wrap(err, "stream status")
	}
	defer resp.Body.Close()
	var sum proto.Summary
	if err := json.NewDecoder(resp.Body).Decode(&sum); err != nil {
		return errors.Wrap(err, "decode stream status")
	}
	if sum.State != "FINISHED" {
		return &streamFailed{State: sum.State, Err: sum.Error}
	}
	return nil
}

func (c *client) printJSON(ctx context.Context, path string, stdout io.Writer) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return errors.Wrap(err, "decode response")
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(stdout)
	return err
}

func (c *client) fail(ctx context.Context, args []string) error {
	id, err := requireID("fail", args)
	if err != nil {
		return err
	}
	var ce proto.ClientError
	fs := flag.NewFlagSet("fail", flag.ContinueOnError)
	fs.IntVar(&ce.HTTPStatus, "status", 0, "status code the peers receive (400-599)")
	fs.StringVar(&ce.Name, "name", "", "error name")
	fs.StringVar(&ce.Message, "message", "", "error message")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	resp, err := c.postJSON(ctx, streamPath(id, "/error"), ce)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
