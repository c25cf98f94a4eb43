package stt

import (
	"context"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/ami/domain/repositories"
)

func TestRecognizeRequest(t *testing.T) {
	req, err := recognizeRequest([]byte{1, 2}, repositories.AudioConfig{SampleRate: 16000, Encoding: "linear16"})
	require.NoError(t, err)

	assert.Equal(t, speechpb.RecognitionConfig_LINEAR16, req.GetConfig().GetEncoding())
	assert.Equal(t, int32(16000), req.GetConfig().GetSampleRateHertz())
	assert.Equal(t, defaultLanguage, req.GetConfig().GetLanguageCode())
	assert.Equal(t, []byte{1, 2}, req.GetAudio().GetContent())

	_, err = recognizeRequest([]byte{1}, repositories.AudioConfig{Encoding: "MP3"})
	assert.Error(t, err)
}

func TestTranscriptOf(t *testing.T) {
	resp := &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "Good morning"}, {Transcript: "Could morning"}}},
		{},
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: " how are you "}}},
	}}
	assert.Equal(t, "Good morning how are you", transcriptOf(resp))
	assert.Empty(t, transcriptOf(&speechpb.RecognizeResponse{}))
}

func TestMockSpeechToText(t *testing.T) {
	mock := NewMockSpeechToText(zap.NewNop())

	text, err := mock.TranscribeAudio(context.Background(), make([]byte, 100), repositories.AudioConfig{})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ami!", text)

	_, err = mock.TranscribeAudio(context.Background(), nil, repositories.AudioConfig{})
	assert.Error(t, err)
}
