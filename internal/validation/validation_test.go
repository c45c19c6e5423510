package validation

import "testing"

func TestTransactionID(t *testing.T) {
	cases := []struct {
		id    string
		valid bool
	}{
		{"TRX20260115A1B2C3", true},
		{"ABCD1234", true},
		{"A1B2C3D4E5F6G7H8I9J0", true},
		{"SHORT1", false},
		{"A1B2C3D4E5F6G7H8I9J0X", false},
		{"trx20260115a1b2c3", false},
		{"TRX-20260115", false},
		{"", false},
	}

	for _, c := range cases {
		if got := TransactionID(c.id); got != c.valid {
			t.Errorf("TransactionID(%q) = %v, want %v", c.id, got, c.valid)
		}
	}
}

func TestWebhookPayloadValidation(t *testing.T) {
	v := New()

	valid := WebhookPayload{
		TransactionID: "TRX20260115A1B2C3",
		Status:        "paid",
		Amount:        10000,
	}
	if err := v.Struct(valid); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	badID := valid
	badID.TransactionID = "not-a-trx-id"
	if err := v.Struct(badID); err == nil {
		t.Fatal("malformed transaction id accepted")
	}

	noAmount := valid
	noAmount.Amount = 0
	if err := v.Struct(noAmount); err == nil {
		t.Fatal("zero amount accepted")
	}

	noStatus := valid
	noStatus.Status = ""
	if err := v.Struct(noStatus); err == nil {
		t.Fatal("empty status accepted")
	}
}

func TestCreateTransactionRequestValidation(t *testing.T) {
	v := New()

	if err := v.Struct(CreateTransactionRequest{PackageID: 1}); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
	if err := v.Struct(CreateTransactionRequest{PackageID: 0}); err == nil {
		t.Fatal("zero package id accepted")
	}
	if err := v.Struct(CreateTransactionRequest{PackageID: -3}); err == nil {
		t.Fatal("negative package id accepted")
	}
}
