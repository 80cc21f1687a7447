package fixtures

import (
	"fmt"
	"time"

	"github.com/champfund/donation-gateway/internal/model"
)

func NewTestDonation(donorName, phoneNumber string, amount int64) *model.Donation {
	return &model.Donation{
		ID:          0,
		DonorName:   donorName,
		PhoneNumber: phoneNumber,
		Amount:      amount,
		CreatedAt:   time.Now(),
	}
}

func NewTestDonationCreateRequest(donorName, phoneNumber, amount string) model.DonationCreateRequest {
	return model.DonationCreateRequest{
		DonorName:   donorName,
		PhoneNumber: phoneNumber,
		Amount:      amount,
	}
}

func NewTestPaymentLog(transactionID, phoneNumber string, amount float64, status model.PaymentStatus) *model.PaymentLog {
	return &model.PaymentLog{
		TransactionID:   transactionID,
		PhoneNumber:     phoneNumber,
		Amount:          amount,
		TransactionType: model.TransactionTypePaybill,
		Status:          status,
		DateReceived:    time.Now(),
	}
}

// SuccessCallbackJSON builds a complete successful STK callback envelope the
// way the gateway delivers it, metadata items included.
func SuccessCallbackJSON(receipt, phoneNumber string, amount float64) string {
	return fmt.Sprintf(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_191220191020363925",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": %g},
						{"Name": "MpesaReceiptNumber", "Value": "%s"},
						{"Name": "TransactionDate", "Value": 20191219102115},
						{"Name": "PhoneNumber", "Value": %s}
					]
				}
			}
		}
	}`, amount, receipt, phoneNumber)
}

// FailedCallbackJSON builds a failed STK callback; failures carry no
// metadata block.
func FailedCallbackJSON(resultCode int, resultDesc string) string {
	return fmt.Sprintf(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_191220191020363925",
				"ResultCode": %d,
				"ResultDesc": "%s"
			}
		}
	}`, resultCode, resultDesc)
}

var (
	ValidPhoneNumbers = []string{
		"254712345678",
		"254722000111",
		"254733999888",
	}

	InvalidAmounts = []string{
		"",
		"abc",
		"0",
		"-50",
		"12.50",
	}
)

func DonationRequestValid() model.DonationCreateRequest {
	return NewTestDonationCreateRequest("Jane Wanjiku", "254712345678", "500")
}

func DonationRequestMissingName() model.DonationCreateRequest {
	return NewTestDonationCreateRequest("", "254712345678", "500")
}

func DonationRequestMissingPhone() model.DonationCreateRequest {
	return NewTestDonationCreateRequest("Jane Wanjiku", "", "500")
}

func DonationRequestBadAmount(amount string) model.DonationCreateRequest {
	return NewTestDonationCreateRequest("Jane Wanjiku", "254712345678", amount)
}

func DonationFilterByPhone(phoneNumber string) model.DonationFilter {
	return model.DonationFilter{
		PhoneNumber: &phoneNumber,
		Limit:       50,
		Offset:      0,
		Desc:        false,
	}
}

func DonationFilterWithPagination(limit, offset int) model.DonationFilter {
	return model.DonationFilter{
		Limit:  limit,
		Offset: offset,
		Desc:   false,
	}
}

func DonationFilterByTimeRange(from, to time.Time) model.DonationFilter {
	return model.DonationFilter{
		From:   &from,
		To:     &to,
		Limit:  50,
		Offset: 0,
		Desc:   false,
	}
}

func PaymentLogFilterByStatus(statuses ...model.PaymentStatus) model.PaymentLogFilter {
	return model.PaymentLogFilter{
		Statuses: statuses,
		Limit:    50,
		Offset:   0,
	}
}
