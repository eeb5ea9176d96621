// Package kas is a client for the KAS hosting provider's SOAP API, which
// provisions the physical MySQL databases backing remote-mode cases. Each API
// action is a single KasApi RPC whose payload is a JSON document wrapped in a
// SOAP envelope; the response carries a {ReturnString, ReturnInfo, Msg}
// success/failure envelope.
package kas

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// DefaultEndpoint is the documented KAS SOAP endpoint.
const DefaultEndpoint = "https://kasapi.kasserver.com/soap/"

const defaultTimeout = 60 * time.Second

// Config carries the fixed account credentials and transport knobs.
type Config struct {
	Login    string
	Password string
	// Endpoint overrides DefaultEndpoint, mainly for tests.
	Endpoint string
	// DatabaseHost is the MySQL host handed out with newly created databases.
	DatabaseHost string
	// Timeout bounds each HTTP attempt (60s if zero). The API is a third
	// party; an unbounded call would block the request for its full duration.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client calls the KAS API. Transient transport failures are retried at the
// HTTP layer; a failed API action is never retried here.
type Client struct {
	cfg  Config
	http *retryablehttp.Client
}

// NewClient constructs a Client.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	rc.HTTPClient.Timeout = cfg.Timeout

	return &Client{cfg: cfg, http: rc}
}

// ProvisionedDatabase is the credential set returned for a freshly created
// database. KAS uses the database login as both schema name and user.
type ProvisionedDatabase struct {
	Name     string
	User     string
	Password string
	Host     string
}

// CreateDatabase provisions a new database for the case id. The database name
// is derived deterministically from the id (shortened to satisfy the
// provider's length limit) and the password is freshly generated.
func (c *Client) CreateDatabase(ctx context.Context, caseID, comment string) (ProvisionedDatabase, error) {
	password, err := GeneratePassword(passwordLength)
	if err != nil {
		return ProvisionedDatabase{}, fmt.Errorf("generate database password: %w", err)
	}

	// KAS assigns the login itself; the derived name only tags the database
	// in the panel so it can be traced back to its case.
	env, err := c.call(ctx, "add_database", map[string]any{
		"database_password":      password,
		"database_comment":       comment + " [" + DatabaseNameFor(caseID) + "]",
		"database_allowed_hosts": "localhost",
	})
	if err != nil {
		return ProvisionedDatabase{}, err
	}
	if !env.ok() {
		return ProvisionedDatabase{}, fmt.Errorf("kas add_database: %s", env.errorMessage())
	}

	// ReturnInfo holds the assigned database login, which doubles as the
	// database name and user.
	var login string
	if err := json.Unmarshal(env.Response.ReturnInfo, &login); err != nil || login == "" {
		return ProvisionedDatabase{}, fmt.Errorf("kas add_database: missing database login in response")
	}

	c.cfg.Logger.Info("kas database created",
		zap.String("case_id", caseID),
		zap.String("database_login", login),
	)

	return ProvisionedDatabase{
		Name:     login,
		User:     login,
		Password: password,
		Host:     c.cfg.DatabaseHost,
	}, nil
}

// DeleteDatabase removes a database by login. Deleting a database that no
// longer exists counts as success; the caller only needs "gone" semantics.
func (c *Client) DeleteDatabase(ctx context.Context, login string) bool {
	env, err := c.call(ctx, "delete_database", map[string]any{
		"database_login": login,
	})
	if err != nil {
		c.cfg.Logger.Error("kas delete_database failed", zap.String("database_login", login), zap.Error(err))
		return false
	}
	if !env.ok() {
		msg := env.errorMessage()
		c.cfg.Logger.Warn("kas delete_database rejected",
			zap.String("database_login", login),
			zap.String("error", msg),
		)
		return false
	}
	return true
}

// ListDatabases returns the raw database listing, optionally filtered by login.
func (c *Client) ListDatabases(ctx context.Context, login string) (json.RawMessage, error) {
	params := map[string]any{}
	if login != "" {
		params["database_login"] = login
	}
	env, err := c.call(ctx, "get_databases", params)
	if err != nil {
		return nil, err
	}
	if !env.ok() {
		return nil, fmt.Errorf("kas get_databases: %s", env.errorMessage())
	}
	return env.Response.ReturnInfo, nil
}

// UpdatePassword rotates the password of an existing database.
func (c *Client) UpdatePassword(ctx context.Context, login, newPassword string) bool {
	env, err := c.call(ctx, "update_database", map[string]any{
		"database_login":        login,
		"database_new_password": newPassword,
	})
	if err != nil {
		c.cfg.Logger.Error("kas update_database failed", zap.String("database_login", login), zap.Error(err))
		return false
	}
	return env.ok()
}

// TestConnection probes the API with a database listing. Never returns an
// error; false means unreachable or rejected.
func (c *Client) TestConnection(ctx context.Context) bool {
	_, err := c.ListDatabases(ctx, "")
	if err != nil {
		c.cfg.Logger.Warn("kas connection test failed", zap.Error(err))
		return false
	}
	return true
}

type apiEnvelope struct {
	Response struct {
		ReturnString string          `json:"ReturnString"`
		ReturnInfo   json.RawMessage `json:"ReturnInfo"`
		Msg          []struct {
			Text string `json:"text"`
		} `json:"Msg"`
	} `json:"Response"`
}

func (e apiEnvelope) ok() bool {
	return e.Response.ReturnString == "TRUE"
}

func (e apiEnvelope) errorMessage() string {
	if len(e.Response.Msg) > 0 && e.Response.Msg[0].Text != "" {
		return e.Response.Msg[0].Text
	}
	return "unknown error"
}

type soapRequest struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	SoapNS  string   `xml:"xmlns:soap,attr"`
	Body    struct {
		KasApi struct {
			NS      string `xml:"xmlns,attr"`
			Request string `xml:"Params"`
		} `xml:"KasApi"`
	} `xml:"soap:Body"`
}

func (c *Client) call(ctx context.Context, action string, params map[string]any) (apiEnvelope, error) {
	payload, err := json.Marshal(map[string]any{
		"kas_login":        c.cfg.Login,
		"kas_auth_type":    "plain",
		"kas_auth_data":    c.cfg.Password,
		"kas_action":       action,
		"KasRequestParams": params,
	})
	if err != nil {
		return apiEnvelope{}, fmt.Errorf("encode kas request: %w", err)
	}

	var envelope soapRequest
	envelope.SoapNS = "http://schemas.xmlsoap.org/soap/envelope/"
	envelope.Body.KasApi.NS = "https://kasserver.com/"
	envelope.Body.KasApi.Request = string(payload)

	body, err := xml.Marshal(envelope)
	if err != nil {
		return apiEnvelope{}, fmt.Errorf("encode soap envelope: %w", err)
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, c.cfg.Endpoint, bytes.NewReader(append([]byte(xml.Header), body...)))
	if err != nil {
		return apiEnvelope{}, fmt.Errorf("build kas request: %w", err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "KasApi")
	req.Header.Set("User-Agent", "LexArbitra/1.0")

	c.cfg.Logger.Debug("kas api request", zap.String("action", action))

	resp, err := c.http.Do(req)
	if err != nil {
		return apiEnvelope{}, fmt.Errorf("kas %s: %w", action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiEnvelope{}, fmt.Errorf("read kas response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return apiEnvelope{}, fmt.Errorf("kas %s: http status %d", action, resp.StatusCode)
	}

	result, err := extractSoapResult(raw)
	if err != nil {
		return apiEnvelope{}, fmt.Errorf("kas %s: %w", action, err)
	}

	var env apiEnvelope
	if err := json.Unmarshal([]byte(result), &env); err != nil {
		return apiEnvelope{}, fmt.Errorf("kas %s: decode response payload: %w", action, err)
	}
	return env, nil
}

// extractSoapResult pulls the JSON result string out of the SOAP response
// body. The payload sits in the character data of the first "return" element;
// a Fault element instead means the call itself failed.
func extractSoapResult(raw []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(raw))
	var inReturn, inFaultString bool
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse soap response: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "return", "Result":
				inReturn = true
			case "faultstring":
				inFaultString = true
			}
		case xml.EndElement:
			inReturn = false
			inFaultString = false
		case xml.CharData:
			if inReturn {
				return string(t), nil
			}
			if inFaultString {
				return "", fmt.Errorf("soap fault: %s", string(t))
			}
		}
	}
	return "", fmt.Errorf("soap response carried no result")
}
