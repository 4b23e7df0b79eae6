package queue

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeGeneration(t *testing.T) {
	t.Parallel()

	payload := GenerationPayload{
		ArticleID: uuid.New(),
		AuthorID:  uuid.New(),
		Params:    GenerationParams{Topic: "city gardening"},
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	job := &Job{ID: uuid.New(), Queue: QueueGeneration, Payload: data}

	decoded, err := DecodeGeneration(job)
	require.NoError(t, err)
	assert.Equal(t, payload.ArticleID, decoded.ArticleID)
	assert.Equal(t, "city gardening", decoded.Params.Topic)
}

func TestDecodeGenerationWrongQueue(t *testing.T) {
	t.Parallel()

	job := &Job{ID: uuid.New(), Queue: QueueEmail, Payload: []byte(`{}`)}

	_, err := DecodeGeneration(job)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecodeMalformedPayload(t *testing.T) {
	t.Parallel()

	job := &Job{ID: uuid.New(), Queue: QueueNarration, Payload: []byte(`{not json`)}

	_, err := DecodeNarration(job)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestPayloadValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		payload Payload
		wantErr bool
	}{
		{
			name: "valid generation payload",
			payload: &GenerationPayload{
				ArticleID: uuid.New(),
				AuthorID:  uuid.New(),
				Params:    GenerationParams{Topic: "espresso"},
			},
		},
		{
			name:    "generation payload without article ID",
			payload: &GenerationPayload{AuthorID: uuid.New(), Params: GenerationParams{Topic: "x"}},
			wantErr: true,
		},
		{
			name: "template generation without topic is valid",
			payload: &GenerationPayload{
				ArticleID:     uuid.New(),
				AuthorID:      uuid.New(),
				TemplateBased: true,
			},
		},
		{
			name:    "narration payload without text",
			payload: &NarrationPayload{ArticleID: uuid.New()},
			wantErr: true,
		},
		{
			name:    "email payload without body",
			payload: &EmailPayload{To: "reader@example.com", Subject: "Hi"},
			wantErr: true,
		},
		{
			name:    "valid email payload",
			payload: &EmailPayload{To: "reader@example.com", Subject: "Hi", Text: "hello"},
		},
		{
			name:    "image upload payload without sources",
			payload: &ImageUploadPayload{ArticleID: uuid.New(), UploadPath: "articles/1"},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.payload.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPayload)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewPayloadForUnknownQueue(t *testing.T) {
	t.Parallel()

	_, err := newPayloadFor(Name("video"))
	assert.ErrorIs(t, err, ErrUnknownQueue)
}
