package alipay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/smartwalle/alipay/v3"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/config"
	"github.com/Qubut/IP-Claim/packages/alipay_bill/internal/models"
)

const (
	billDownloadURLMethod = "alipay.data.dataservice.bill.downloadurl.query"
	billDownloadURLNode   = "alipay_data_dataservice_bill_downloadurl_query_response"
	errorResponseNode     = "error_response"
)

var ErrInvalidKey = errors.New("invalid rsa key")

// The gateway expects request timestamps in Beijing time.
var gatewayZone = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return loc
}()

type Client struct {
	cfg    config.Alipay
	http   *http.Client
	logger *zap.SugaredLogger
}

func NewClient(cfg config.Alipay, logger *zap.SugaredLogger) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// QueryBillDownloadURL asks the gateway for the download URL of one day's bill.
// A response that is not a JSON object carrying the method's response node
// fails with ErrMalformedResponse; a well-formed business error is returned as
// a Result whose Success is false.
func (c *Client) QueryBillDownloadURL(
	ctx context.Context,
	account models.Account,
	billType models.BillType,
	date string,
) (*Result, error) {
	if !billType.Valid() {
		return nil, fmt.Errorf("%w: %d", models.ErrUnknownBillType, uint8(billType))
	}
	client, err := newGatewayClient(account,
		sdk.WithProductionGateway(c.cfg.GatewayURL),
		sdk.WithHTTPClient(c.http),
		sdk.WithTimeLocation(gatewayZone),
	)
	if err != nil {
		return nil, err
	}
	var raw []byte
	client.OnReceivedData(func(_ context.Context, _ string, data []byte) { raw = data })

	start := time.Now()
	rsp, err := client.BillDownloadURLQuery(ctx, sdk.BillDownloadURLQuery{
		BillType: billType.String(),
		BillDate: date,
	})
	c.logger.Debugw("Gateway responded",
		"app_id", account.AppID,
		"bill_type", billType.String(),
		"date", date,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) && apiErr != nil {
			if apiErr.Code == "" {
				return nil, fmt.Errorf("%w: missing code", ErrMalformedResponse)
			}
			return &Result{
				Code:    string(apiErr.Code),
				Msg:     apiErr.Msg,
				SubCode: apiErr.SubCode,
				SubMsg:  apiErr.SubMsg,
				Raw:     raw,
			}, nil
		}
		if malformed(err, raw) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return nil, fmt.Errorf("query %s: %w", billDownloadURLMethod, err)
	}
	if rsp == nil || rsp.Code == "" {
		return nil, fmt.Errorf("%w: missing code", ErrMalformedResponse)
	}
	return &Result{
		Code:            string(rsp.Code),
		Msg:             rsp.Msg,
		SubCode:         rsp.SubCode,
		SubMsg:          rsp.SubMsg,
		BillDownloadURL: rsp.BillDownloadURL,
		BillFileCode:    rsp.BillFileCode,
		Raw:             raw,
	}, nil
}

// CheckKeys reports whether the account's private key and the provider public
// key load into a gateway client.
func CheckKeys(account models.Account) error {
	_, err := newGatewayClient(account)
	return err
}

func newGatewayClient(account models.Account, opts ...sdk.OptionFunc) (*sdk.Client, error) {
	client, err := sdk.New(account.AppID, keyBody(account.RSAPrivateKey), true, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: private key of %s: %v", ErrInvalidKey, account.AppID, err)
	}
	if err := client.LoadAliPayPublicKey(keyBody(account.RSAPublicKey)); err != nil {
		return nil, fmt.Errorf("%w: public key of %s: %v", ErrInvalidKey, account.AppID, err)
	}
	return client, nil
}

// keyBody turns a PEM block into the bare base64 body the gateway client
// loads. Bare bodies pass through without whitespace.
func keyBody(s string) string {
	if block, _ := pem.Decode([]byte(strings.TrimSpace(s))); block != nil {
		return base64.StdEncoding.EncodeToString(block.Bytes)
	}
	return strings.Join(strings.Fields(s), "")
}

// malformed reports whether the gateway answered something other than a JSON
// object carrying the response node.
func malformed(err error, raw []byte) bool {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return true
	}
	if raw == nil {
		return false
	}
	var envelope map[string]json.RawMessage
	if json.Unmarshal(raw, &envelope) != nil {
		return true
	}
	_, ok := envelope[billDownloadURLNode]
	if !ok {
		_, ok = envelope[errorResponseNode]
	}
	return !ok
}
