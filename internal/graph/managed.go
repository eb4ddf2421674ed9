package graph

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"go.uber.org/zap"
)

const neptuneService = "neptune-db"

// ManagedOptions configures the Neptune openCypher endpoint.
type ManagedOptions struct {
	// Endpoint is a base URL ("https://host:port"). A bare host is expanded with Port.
	Endpoint    string
	Port        int
	Region      string
	Credentials aws.CredentialsProvider
	HTTPClient  *http.Client
	Insecure    bool
}

func (o ManagedOptions) baseURL() string {
	if strings.Contains(o.Endpoint, "://") {
		return strings.TrimRight(o.Endpoint, "/")
	}
	port := o.Port
	if port == 0 {
		port = 8182
	}
	return fmt.Sprintf("https://%s:%d", o.Endpoint, port)
}

type neptuneRunner struct {
	base   string
	region string
	creds  aws.CredentialsProvider
	signer *v4.Signer
	client *http.Client
	now    func() time.Time
}

type neptuneResponse struct {
	Results []map[string]any `json:"results"`
}

// NewManaged builds the adapter for Neptune's openCypher HTTPS API with SigV4 request signing.
func NewManaged(opts ManagedOptions, ns Namespace, log *zap.Logger) (Adapter, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("managed graph endpoint is required")
	}
	if opts.Credentials == nil {
		return nil, fmt.Errorf("managed graph credentials are required")
	}
	client := opts.HTTPClient
	if client == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if opts.Insecure {
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		client = &http.Client{Transport: tr, Timeout: 30 * time.Second}
	}
	r := &neptuneRunner{
		base:   opts.baseURL(),
		region: opts.Region,
		creds:  opts.Credentials,
		signer: v4.NewSigner(),
		client: client,
		now:    time.Now,
	}
	return newCypherAdapter(r, ns, "managed", log), nil
}

func (r *neptuneRunner) sign(ctx context.Context, req *http.Request, body string) error {
	creds, err := r.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("retrieve aws credentials: %w", err)
	}
	sum := sha256.Sum256([]byte(body))
	return r.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), neptuneService, r.region, r.now())
}

func (r *neptuneRunner) do(ctx context.Context, method, path, body string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.base+path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if err := r.sign(ctx, req, body); err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read neptune response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(data)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return nil, fmt.Errorf("neptune returned %d: %s", resp.StatusCode, msg)
	}
	return data, nil
}

func (r *neptuneRunner) Run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	form := url.Values{}
	form.Set("query", cypher)
	if len(params) > 0 {
		p, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode parameters: %w", err)
		}
		form.Set("parameters", string(p))
	}

	data, err := r.do(ctx, http.MethodPost, "/openCypher", form.Encode())
	if err != nil {
		return nil, err
	}
	var out neptuneResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode neptune response: %w", err)
	}
	return out.Results, nil
}

func (r *neptuneRunner) Ping(ctx context.Context) error {
	_, err := r.do(ctx, http.MethodGet, "/status", "")
	return err
}

func (r *neptuneRunner) Close(context.Context) error {
	r.client.CloseIdleConnections()
	return nil
}
