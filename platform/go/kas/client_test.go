package kas

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type capturedCall struct {
	Action string
	Params map[string]any
}

// fakeKAS serves the SOAP endpoint and replies with the configured payload
// JSON for each decoded action.
func fakeKAS(t *testing.T, calls *[]capturedCall, respond func(action string) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		payload := extractParams(t, body)
		var req struct {
			Action string         `json:"kas_action"`
			Params map[string]any `json:"KasRequestParams"`
		}
		require.NoError(t, json.Unmarshal([]byte(payload), &req))
		*calls = append(*calls, capturedCall{Action: req.Action, Params: req.Params})

		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		fmt.Fprintf(w, `<?xml version="1.0"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/">
<SOAP-ENV:Body><ns1:KasApiResponse><return>%s</return></ns1:KasApiResponse></SOAP-ENV:Body>
</SOAP-ENV:Envelope>`, respond(req.Action))
	}))
}

func extractParams(t *testing.T, raw []byte) string {
	t.Helper()
	decoder := xml.NewDecoder(bytes.NewReader(raw))
	inParams := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		switch tk := tok.(type) {
		case xml.StartElement:
			if tk.Name.Local == "Params" {
				inParams = true
			}
		case xml.EndElement:
			inParams = false
		case xml.CharData:
			if inParams {
				return string(tk)
			}
		}
	}
	t.Fatal("request carried no Params element")
	return ""
}

func testClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	return NewClient(Config{
		Login:        "w012345",
		Password:     "account-password",
		Endpoint:     endpoint,
		DatabaseHost: "db.example.test",
		Logger:       zaptest.NewLogger(t),
	})
}

func TestCreateDatabase(t *testing.T) {
	t.Parallel()

	var calls []capturedCall
	server := fakeKAS(t, &calls, func(action string) string {
		return `{"Response":{"ReturnString":"TRUE","ReturnInfo":"w012345_3"}}`
	})
	defer server.Close()

	client := testClient(t, server.URL)
	db, err := client.CreateDatabase(context.Background(), "0d9b6f2a-4c31-4e52-9f8d-1a2b3c4d5e6f", "case db")
	require.NoError(t, err)

	require.Equal(t, "w012345_3", db.Name)
	require.Equal(t, "w012345_3", db.User)
	require.Equal(t, "db.example.test", db.Host)
	require.Len(t, db.Password, passwordLength)

	require.Len(t, calls, 1)
	require.Equal(t, "add_database", calls[0].Action)
	require.Equal(t, db.Password, calls[0].Params["database_password"])
	require.Equal(t, "case db [case_0d9b6f2a]", calls[0].Params["database_comment"])
}

func TestCreateDatabaseRejected(t *testing.T) {
	t.Parallel()

	var calls []capturedCall
	server := fakeKAS(t, &calls, func(action string) string {
		return `{"Response":{"ReturnString":"FALSE","Msg":[{"text":"database limit reached"}]}}`
	})
	defer server.Close()

	client := testClient(t, server.URL)
	_, err := client.CreateDatabase(context.Background(), "some-case", "case db")
	require.ErrorContains(t, err, "database limit reached")
}

func TestDeleteDatabase(t *testing.T) {
	t.Parallel()

	var calls []capturedCall
	server := fakeKAS(t, &calls, func(action string) string {
		return `{"Response":{"ReturnString":"TRUE","ReturnInfo":true}}`
	})
	defer server.Close()

	client := testClient(t, server.URL)
	require.True(t, client.DeleteDatabase(context.Background(), "w012345_3"))

	require.Len(t, calls, 1)
	require.Equal(t, "delete_database", calls[0].Action)
	require.Equal(t, "w012345_3", calls[0].Params["database_login"])
}

func TestDeleteDatabaseRejectedReportsFalse(t *testing.T) {
	t.Parallel()

	var calls []capturedCall
	server := fakeKAS(t, &calls, func(action string) string {
		return `{"Response":{"ReturnString":"FALSE","Msg":[{"text":"no such database"}]}}`
	})
	defer server.Close()

	client := testClient(t, server.URL)
	require.False(t, client.DeleteDatabase(context.Background(), "w012345_9"))
}

func TestListDatabasesAndTestConnection(t *testing.T) {
	t.Parallel()

	var calls []capturedCall
	server := fakeKAS(t, &calls, func(action string) string {
		return `{"Response":{"ReturnString":"TRUE","ReturnInfo":[{"database_login":"w012345_3"}]}}`
	})
	defer server.Close()

	client := testClient(t, server.URL)

	raw, err := client.ListDatabases(context.Background(), "")
	require.NoError(t, err)
	var listing []map[string]any
	require.NoError(t, json.Unmarshal(raw, &listing))
	require.Len(t, listing, 1)

	require.True(t, client.TestConnection(context.Background()))
	require.Equal(t, "get_databases", calls[0].Action)
}

func TestSoapFault(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		fmt.Fprint(w, `<?xml version="1.0"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/">
<SOAP-ENV:Body><SOAP-ENV:Fault><faultcode>kasserver</faultcode><faultstring>kas_login not found</faultstring></SOAP-ENV:Fault></SOAP-ENV:Body>
</SOAP-ENV:Envelope>`)
	}))
	defer server.Close()

	client := testClient(t, server.URL)
	_, err := client.ListDatabases(context.Background(), "")
	require.ErrorContains(t, err, "kas_login not found")
	require.False(t, client.TestConnection(context.Background()))
}
