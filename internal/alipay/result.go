package alipay

import (
	"encoding/json"
	"errors"
)

const (
	SuccessCode = "10000"
	// EmptyBillFileCode is returned when the account has no bill of that type for the day.
	EmptyBillFileCode = "EMPTY_DATA_WITH_BILL_FILE"
)

var ErrMalformedResponse = errors.New("malformed response")

// Result is the decoded alipay.data.dataservice.bill.downloadurl.query response.
type Result struct {
	Code            string `json:"code"`
	Msg             string `json:"msg"`
	SubCode         string `json:"sub_code,omitempty"`
	SubMsg          string `json:"sub_msg,omitempty"`
	BillDownloadURL string `json:"bill_download_url,omitempty"`
	BillFileCode    string `json:"bill_file_code,omitempty"`

	// Raw is the response body as received.
	Raw json.RawMessage `json:"-"`
}

func (r *Result) Success() bool {
	return r.Code == SuccessCode
}

func (r *Result) Empty() bool {
	return r.BillFileCode == EmptyBillFileCode
}
