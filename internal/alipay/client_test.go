package alipay

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/config"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/models"
)

type keyPair struct {
	private *rsa.PrivateKey
	// PKCS#8 PEM
	privatePEM string
	// bare base64 PKIX, the way the console shows it
	publicB64 string
}

func newKeyPair(t *testing.T) keyPair {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return keyPair{
		private:    key,
		privatePEM: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		publicB64:  base64.StdEncoding.EncodeToString(pub),
	}
}

// gateway signs response nodes the way the open platform does: RSA2 over the
// node's raw JSON.
type gateway struct {
	t        *testing.T
	platform keyPair
}

func (g gateway) signed(node, payload string) string {
	g.t.Helper()
	digest := sha256.Sum256([]byte(payload))
	sig, err := rsa.SignPKCS1v15(rand.Reader, g.platform.private, crypto.SHA256, digest[:])
	require.NoError(g.t, err)
	return fmt.Sprintf(`{"%s":%s,"sign":"%s"}`, node, payload, base64.StdEncoding.EncodeToString(sig))
}

func newAccount(t *testing.T, platform keyPair) models.Account {
	return models.Account{
		AppID:         "2021000000000001",
		RSAPrivateKey: newKeyPair(t).privatePEM,
		RSAPublicKey:  platform.publicB64,
	}
}

func newTestClient(gatewayURL string) *Client {
	return NewClient(config.Alipay{
		GatewayURL: gatewayURL,
		Timeout:    5 * time.Second,
	}, zap.NewNop().Sugar())
}

func TestQueryBillDownloadURLSendsSignedRequest(t *testing.T) {
	gw := gateway{t: t, platform: newKeyPair(t)}
	account := newAccount(t, gw.platform)

	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		got = r.Form
		_, _ = w.Write([]byte(gw.signed(billDownloadURLNode,
			`{"code":"10000","msg":"Success","bill_download_url":"https://x/y.zip","bill_file_code":"SUCCESS"}`)))
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).
		QueryBillDownloadURL(context.Background(), account, models.BillTypeSignCustomer, "2026-10-18")
	require.NoError(t, err)
	assert.True(t, result.Success())
	assert.False(t, result.Empty())
	assert.Equal(t, "https://x/y.zip", result.BillDownloadURL)
	assert.NotEmpty(t, result.Raw)

	assert.Equal(t, account.AppID, got.Get("app_id"))
	assert.Equal(t, billDownloadURLMethod, got.Get("method"))
	assert.Equal(t, "RSA2", got.Get("sign_type"))
	assert.NotEmpty(t, got.Get("sign"))
	_, err = time.ParseInLocation("2006-01-02 15:04:05", got.Get("timestamp"), gatewayZone)
	assert.NoError(t, err)

	var biz map[string]string
	require.NoError(t, json.Unmarshal([]byte(got.Get("biz_content")), &biz))
	assert.Equal(t, "signcustomer", biz["bill_type"])
	assert.Equal(t, "2026-10-18", biz["bill_date"])
}

func TestQueryBillDownloadURLResponses(t *testing.T) {
	gw := gateway{t: t, platform: newKeyPair(t)}
	account := newAccount(t, gw.platform)

	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   bool
		malformed bool
		check     func(t *testing.T, r *Result)
	}{
		{
			name:   "empty bill",
			status: http.StatusOK,
			body:   gw.signed(billDownloadURLNode, `{"code":"10000","msg":"Success","bill_file_code":"EMPTY_DATA_WITH_BILL_FILE"}`),
			check: func(t *testing.T, r *Result) {
				assert.True(t, r.Empty())
				assert.Empty(t, r.BillDownloadURL)
			},
		},
		{
			name:   "business error",
			status: http.StatusOK,
			body:   gw.signed(billDownloadURLNode, `{"code":"40004","msg":"Business Failed","sub_code":"isp.unknow-error","sub_msg":"bad"}`),
			check: func(t *testing.T, r *Result) {
				assert.False(t, r.Success())
				assert.Equal(t, "40004", r.Code)
				assert.Equal(t, "isp.unknow-error", r.SubCode)
			},
		},
		{name: "not json", status: http.StatusOK, body: `<html>`, wantErr: true, malformed: true},
		{name: "unknown node", status: http.StatusOK, body: `{"other_response":{"code":"10000"}}`, wantErr: true, malformed: true},
		{name: "node without code", status: http.StatusOK, body: gw.signed(billDownloadURLNode, `{}`), wantErr: true, malformed: true},
		{name: "gateway down", status: http.StatusBadGateway, body: `oops`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			result, err := newTestClient(srv.URL).
				QueryBillDownloadURL(context.Background(), account, models.BillTypeTrade, "2026-10-18")
			if tt.wantErr {
				require.Error(t, err)
				if tt.malformed {
					assert.ErrorIs(t, err, ErrMalformedResponse)
				}
				return
			}
			require.NoError(t, err)
			tt.check(t, result)
		})
	}
}

func TestQueryBillDownloadURLVerifiesResponse(t *testing.T) {
	gw := gateway{t: t, platform: newKeyPair(t)}
	impostor := gateway{t: t, platform: newKeyPair(t)}
	account := newAccount(t, gw.platform)
	payload := `{"code":"10000","msg":"Success","bill_download_url":"https://x/y.zip","bill_file_code":"SUCCESS"}`

	serve := func(body string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
	}

	t.Run("signed by another key", func(t *testing.T) {
		srv := serve(impostor.signed(billDownloadURLNode, payload))
		defer srv.Close()
		_, err := newTestClient(srv.URL).
			QueryBillDownloadURL(context.Background(), account, models.BillTypeTrade, "2026-10-18")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrMalformedResponse))
	})

	t.Run("unsigned", func(t *testing.T) {
		srv := serve(fmt.Sprintf(`{"%s":%s}`, billDownloadURLNode, payload))
		defer srv.Close()
		_, err := newTestClient(srv.URL).
			QueryBillDownloadURL(context.Background(), account, models.BillTypeTrade, "2026-10-18")
		require.Error(t, err)
	})
}

func TestQueryBillDownloadURLRejectsBadKeys(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls.Add(1) }))
	defer srv.Close()

	platform := newKeyPair(t)
	for name, account := range map[string]models.Account{
		"private key": {AppID: "2021000000000001", RSAPrivateKey: "not a key", RSAPublicKey: platform.publicB64},
		"public key":  {AppID: "2021000000000001", RSAPrivateKey: platform.privatePEM, RSAPublicKey: "bm90IGEga2V5"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := newTestClient(srv.URL).
				QueryBillDownloadURL(context.Background(), account, models.BillTypeTrade, "2026-10-18")
			require.ErrorIs(t, err, ErrInvalidKey)
		})
	}
	assert.Zero(t, calls.Load())
}

func TestCheckKeys(t *testing.T) {
	pair := newKeyPair(t)
	pkcs1 := string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(pair.private)}))

	for name, private := range map[string]string{"pkcs8 pem": pair.privatePEM, "pkcs1 pem": pkcs1} {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, CheckKeys(models.Account{
				AppID:         "2021000000000001",
				RSAPrivateKey: private,
				RSAPublicKey:  pair.publicB64,
			}))
		})
	}
	err := CheckKeys(models.Account{AppID: "2021000000000001", RSAPrivateKey: pair.privatePEM})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeyBody(t *testing.T) {
	block := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: []byte("abc")})
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("abc")), keyBody(string(block)))
	assert.Equal(t, "MIIBIjAN", keyBody(" MIIB\n  IjAN \n"))
}
