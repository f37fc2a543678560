package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	DisasterNumber int    `json:"disasterNumber"`
	State          string `json:"state"`
}

func TestDecodeJSONArray(t *testing.T) {
	input := `[{"disasterNumber":4332,"state":"TX"},{"disasterNumber":4337,"state":"FL"}]`

	outCh, errCh := DecodeJSONArray[testRecord](context.Background(), strings.NewReader(input))

	var got []testRecord
	for rec := range outCh {
		got = append(got, rec)
	}
	require.NoError(t, <-errCh)

	require.Len(t, got, 2)
	assert.Equal(t, 4332, got[0].DisasterNumber)
	assert.Equal(t, "FL", got[1].State)
}

func TestDecodeJSONArrayEmptyInput(t *testing.T) {
	outCh, errCh := DecodeJSONArray[testRecord](context.Background(), strings.NewReader(""))
	for range outCh {
		t.Fatal("expected no records")
	}
	assert.NoError(t, <-errCh)
}

func TestDecodeJSONArrayNotArray(t *testing.T) {
	outCh, errCh := DecodeJSONArray[testRecord](context.Background(), strings.NewReader(`{"metadata":{}}`))
	for range outCh {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected '['")
}

func TestCollectJSONArray(t *testing.T) {
	input := `[{"disasterNumber":1},{"disasterNumber":2},{"disasterNumber":3}]`

	got, err := CollectJSONArray[testRecord](context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].DisasterNumber, got[1].DisasterNumber, got[2].DisasterNumber})
}

func TestCollectJSONArrayEmpty(t *testing.T) {
	got, err := CollectJSONArray[testRecord](context.Background(), strings.NewReader(`[]`))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCollectJSONArrayBadElement(t *testing.T) {
	_, err := CollectJSONArray[testRecord](context.Background(), strings.NewReader(`[{"disasterNumber":"x"}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json: decode element")
}

func TestDecodeJSONObject(t *testing.T) {
	type countResp struct {
		Metadata struct {
			Count int `json:"count"`
		} `json:"metadata"`
	}

	got, err := DecodeJSONObject[countResp](strings.NewReader(`{"metadata":{"count":2500},"Data":[]}`))
	require.NoError(t, err)
	assert.Equal(t, 2500, got.Metadata.Count)

	_, err = DecodeJSONObject[countResp](strings.NewReader(`not json`))
	assert.Error(t, err)
}
