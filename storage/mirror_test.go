package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"f2_scrooper/config"
	"f2_scrooper/models"
)

type fakePutObject struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutObject) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3MirrorPublish(t *testing.T) {
	fake := &fakePutObject{}
	m := &S3Mirror{client: fake, cfg: config.S3Config{Bucket: "results", Prefix: "f2/", Region: "eu-west-1"}}

	err := m.Publish(context.Background(), models.KindTeamsAndDrivers, []byte(`[]`), "fp")
	require.NoError(t, err)

	assert.Equal(t, "results", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "f2/teams-and-drivers.json", aws.ToString(fake.input.Key))
	assert.Equal(t, "application/json", aws.ToString(fake.input.ContentType))
	assert.Equal(t, "fp", fake.input.Metadata["fingerprint"])
	assert.Equal(t, []byte(`[]`), fake.body)
	assert.Equal(t, "https://results.s3.eu-west-1.amazonaws.com/f2/teams-and-drivers.json", m.PublicURL(models.KindTeamsAndDrivers))
}

func TestS3MirrorPublishError(t *testing.T) {
	m := &S3Mirror{client: &fakePutObject{err: errors.New("denied")}, cfg: config.S3Config{Bucket: "results"}}
	err := m.Publish(context.Background(), models.KindCalendar, []byte(`{}`), "fp")
	assert.ErrorContains(t, err, "calendar.json")
}

func TestPostgresMirror(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	m, err := NewPostgresMirror(ctx, url)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Publish(ctx, models.KindCalendar, []byte(`{"2024":{"title":"x","races":[]}}`), "one"))
	require.NoError(t, m.Publish(ctx, models.KindCalendar, []byte(`{"2024":{"title":"y","races":[]}}`), "two"))

	doc, err := m.Get(ctx, models.KindCalendar)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "two", doc.Fingerprint)
	assert.JSONEq(t, `{"2024":{"title":"y","races":[]}}`, string(doc.Body))
}
