// Package kuborpc is a storage.BlockStore that talks to a Kubo node over its
// HTTP RPC API (/api/v0/block/*).
package kuborpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-multihash"

	"xdao.co/rangeproof/storage"
)

// DefaultAddr is Kubo's default RPC listen address.
const DefaultAddr = "/ip4/127.0.0.1/tcp/5001"

type Options struct {
	// HTTPClient overrides the client used for requests.
	HTTPClient *http.Client
	// Timeout applies per request when non-zero and HTTPClient is nil.
	Timeout time.Duration
	// Offline asks the node not to fetch missing blocks from the network.
	Offline bool
	// Pin pins blocks on Put.
	Pin bool
}

type Store struct {
	base    string
	client  *http.Client
	offline bool
	pin     bool
}

var _ storage.BlockStore = (*Store)(nil)

// New returns a store for the node at addr, given either as a multiaddr
// ("/ip4/127.0.0.1/tcp/5001") or as an http(s) URL.
func New(addr string, opts Options) (*Store, error) {
	base, err := BaseURL(addr)
	if err != nil {
		return nil, err
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Store{base: base, client: client, offline: opts.Offline, pin: opts.Pin}, nil
}

// BaseURL turns a multiaddr or URL into the API base URL.
func BaseURL(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("kuborpc: empty address")
	}
	if strings.HasPrefix(addr, "/") {
		m, err := ma.NewMultiaddr(addr)
		if err != nil {
			return "", fmt.Errorf("kuborpc: invalid multiaddr %q: %w", addr, err)
		}
		network, host, err := manet.DialArgs(m)
		if err != nil {
			return "", fmt.Errorf("kuborpc: %w", err)
		}
		if !strings.HasPrefix(network, "tcp") {
			return "", fmt.Errorf("kuborpc: unsupported network %q", network)
		}
		return "http://" + host, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("kuborpc: invalid url %q: %w", addr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("kuborpc: unsupported scheme %q", u.Scheme)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

type apiError struct {
	Message string
	Code    int
	Type    string
}

func (s *Store) call(ctx context.Context, cmd string, q url.Values, body io.Reader, contentType string) ([]byte, error) {
	if s.offline {
		q.Set("offline", "true")
	}
	endpoint := s.base + "/api/v0/" + cmd + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kuborpc: %s: %w", cmd, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kuborpc: %s: read body: %w", cmd, err)
	}
	if resp.StatusCode == http.StatusOK {
		return out, nil
	}

	var ae apiError
	if jerr := json.Unmarshal(out, &ae); jerr != nil || ae.Message == "" {
		return nil, fmt.Errorf("kuborpc: %s: http %d", cmd, resp.StatusCode)
	}
	if strings.Contains(strings.ToLower(ae.Message), "not found") {
		return nil, storage.ErrNotFound
	}
	return nil, fmt.Errorf("kuborpc: %s: %s", cmd, ae.Message)
}

func (s *Store) Put(ctx context.Context, id cid.Cid, data []byte) error {
	if err := storage.Verify(id, data); err != nil {
		return err
	}
	pref := id.Prefix()
	mh, ok := multihash.Codes[pref.MhType]
	if !ok {
		return fmt.Errorf("kuborpc: unsupported multihash 0x%x", pref.MhType)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "block")
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	q := url.Values{}
	q.Set("cid-codec", multicodec.Code(pref.Codec).String())
	q.Set("mhtype", mh)
	q.Set("mhlen", fmt.Sprint(pref.MhLength))
	q.Set("pin", fmt.Sprint(s.pin))
	out, err := s.call(ctx, "block/put", q, &body, mw.FormDataContentType())
	if err != nil {
		return err
	}

	var reply struct {
		Key  string
		Size int
	}
	if err := json.Unmarshal(out, &reply); err != nil {
		return fmt.Errorf("kuborpc: block/put: unexpected reply: %w", err)
	}
	got, err := cid.Decode(reply.Key)
	if err != nil {
		return fmt.Errorf("kuborpc: block/put: unexpected key %q: %w", reply.Key, err)
	}
	if !bytes.Equal(got.Hash(), id.Hash()) {
		return storage.ErrCIDMismatch
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	out, err := s.call(ctx, "block/get", url.Values{"arg": {id.String()}}, nil, "")
	if err != nil {
		return nil, err
	}
	if err := storage.Verify(id, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Has(ctx context.Context, id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	q := url.Values{"arg": {id.String()}}
	q.Set("offline", "true")
	_, err := s.call(ctx, "block/stat", q, nil, "")
	return err == nil
}
