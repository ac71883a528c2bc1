package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantType  string
		wantID    string
		malformed bool
	}{
		{name: "typed request", payload: `{"type":"login","username":"a","password":"b"}`, wantType: MsgLogin},
		{name: "request id", payload: `{"type":"ping","request_id":"abc"}`, wantType: MsgPing, wantID: "abc"},
		{name: "missing type", payload: `{"username":"a"}`},
		{name: "not json", payload: `hello`, malformed: true},
		{name: "json array", payload: `[1,2,3]`, malformed: true},
		{name: "json null", payload: `null`, malformed: true},
		{name: "numeric type", payload: `{"type":7}`, malformed: true},
		{name: "empty payload", payload: ``, malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tt.payload))
			if tt.malformed {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, env.Type)
			assert.Equal(t, tt.wantID, env.RequestID)
		})
	}
}

func TestEnvelopeBind(t *testing.T) {
	t.Run("valid chat", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"type":"chat","from":"alice","to":"bob","message":"hi"}`))
		require.NoError(t, err)

		var req ChatRequest
		require.NoError(t, env.Bind(&req))
		assert.Equal(t, "alice", req.From)
		assert.Equal(t, "bob", req.To)
		assert.Equal(t, "hi", req.Message)
		assert.Equal(t, MsgChat, req.Type)
	})

	t.Run("missing field uses wire name", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"type":"chat","from":"alice","to":"bob"}`))
		require.NoError(t, err)

		var req ChatRequest
		err = env.Bind(&req)
		var perr *Error
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, CodeMissingField, perr.Code)
		assert.Equal(t, "Missing required field: message", perr.Message)
	})

	t.Run("empty message is invalid input", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"type":"chat","from":"alice","to":"bob","message":""}`))
		require.NoError(t, err)

		var req ChatRequest
		err = env.Bind(&req)
		var perr *Error
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, CodeInvalidInput, perr.Code)
		assert.Equal(t, "Invalid message: must not be empty", perr.Message)
	})

	t.Run("null counts as absent", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"type":"chat","from":"alice","to":"bob","message":null}`))
		require.NoError(t, err)

		var req ChatRequest
		assert.ErrorIs(t, env.Bind(&req), &Error{Code: CodeMissingField})
	})

	t.Run("zero price is invalid input", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"type":"add_product","seller":"bob","name":"Lamp","price":0,"description":"d"}`))
		require.NoError(t, err)

		var req AddProductRequest
		err = env.Bind(&req)
		var perr *Error
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, CodeInvalidInput, perr.Code)
		assert.Equal(t, "Invalid price: must not be zero", perr.Message)
	})

	t.Run("search fields are optional", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"type":"list_products","query":"lamp"}`))
		require.NoError(t, err)

		var req ListProductsRequest
		require.NoError(t, env.Bind(&req))
		assert.Equal(t, "lamp", req.Query)
		assert.Empty(t, req.Category)
	})

	t.Run("wrong json type is invalid input", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"type":"buy_product","product_id":"seven","buyer":"bob"}`))
		require.NoError(t, err)

		var req BuyProductRequest
		err = env.Bind(&req)
		assert.ErrorIs(t, err, &Error{Code: CodeInvalidInput})
	})

	t.Run("rating out of range", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"type":"rate_product","username":"bob","product_id":3,"rating":9}`))
		require.NoError(t, err)

		var req RateProductRequest
		err = env.Bind(&req)
		assert.ErrorIs(t, err, &Error{Code: CodeInvalidInput})
	})

	t.Run("bad email", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"type":"register","username":"bob","password":"pw","name":"Bob","email":"nope"}`))
		require.NoError(t, err)

		var req RegisterRequest
		err = env.Bind(&req)
		assert.ErrorIs(t, err, &Error{Code: CodeInvalidInput})
	})

	t.Run("negative price", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{"type":"add_product","seller":"bob","name":"Lamp","price":-1,"description":"d"}`))
		require.NoError(t, err)

		var req AddProductRequest
		err = env.Bind(&req)
		assert.ErrorIs(t, err, &Error{Code: CodeInvalidInput})
	})
}

func TestValidateTreatsEveryRequiredFailureAsMissing(t *testing.T) {
	err := Validate(&ChatRequest{From: "alice", To: "bob"})
	assert.ErrorIs(t, err, &Error{Code: CodeMissingField})
}

func TestErrorIsMatchesByCode(t *testing.T) {
	decoded := &Error{Code: CodeRecipientOffline, Message: "whatever the server said"}
	assert.ErrorIs(t, decoded, ErrRecipientOffline)
	assert.NotErrorIs(t, decoded, ErrDeliveryFailed)
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse(ErrUnknownRecipient)
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "Recipient does not exist", resp.Message)
	assert.Equal(t, CodeUnknownRecipient, resp.Code)
	assert.ErrorIs(t, resp.Err(), ErrUnknownRecipient)

	internal := ErrorResponse(errors.New("disk on fire"))
	assert.Equal(t, CodeInternal, internal.Code)
	assert.NotContains(t, internal.Message, "disk")

	assert.NoError(t, Success("ok").Err())
}

func TestDecodeResponse(t *testing.T) {
	resp, err := DecodeResponse([]byte(`{"status":"success","products":[{"id":1,"name":"Lamp","price":3,"seller":"a","sold":false}],"request_id":"r1"}`))
	require.NoError(t, err)
	assert.Equal(t, "r1", resp.RequestID)
	require.Len(t, resp.Products, 1)
	assert.Equal(t, "Lamp", resp.Products[0].Name)

	_, err = DecodeResponse([]byte(`{"type":"chat"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodePush(t *testing.T) {
	push, err := DecodePush([]byte(`{"type":"chat","from":"alice","message":"hi","timestamp":"09:15:00"}`))
	require.NoError(t, err)
	assert.Equal(t, "alice", push.From)
	assert.Equal(t, "09:15:00", push.Timestamp)

	_, err = DecodePush([]byte(`{"type":"presence"}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}
