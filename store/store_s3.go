package store

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rrroy5640/NotificationService/encoder"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Config struct {
	Bucket      string
	Prefix      string
	Compression encoder.Compression
}

// S3 archives each record as a single-row parquet object. The object key is
// the record's identity.
type S3 struct {
	client    s3API
	bucket    string
	bucketPtr *string
	prefix    string
	enc       encoder.Encoder[Record]

	now func() time.Time
}

func NewS3(client s3API, cfg S3Config) (*S3, error) {
	if client == nil {
		return nil, errors.New("s3 client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("bucket is required")
	}

	s := &S3{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		enc:    encoder.Parquet[Record]{Compression: cfg.Compression},
		now:    time.Now,
	}
	s.bucketPtr = &s.bucket
	return s, nil
}

func (s *S3) Insert(ctx context.Context, rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}

	data, err := s.enc.Encode(ctx, []Record{rec})
	if err != nil {
		return fmt.Errorf("encode %s message: %w", rec.MessageType, err)
	}

	key, err := s.key()
	if err != nil {
		return err
	}

	cl := int64(len(data))
	ct := s.enc.ContentType()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        s.bucketPtr,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: &cl,
		ContentType:   &ct,
	})
	if err != nil {
		return fmt.Errorf("put s3 object key=%q: %w", key, err)
	}
	return nil
}

// key partitions by hour and appends a random suffix so concurrent workers
// never collide.
func (s *S3) key() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}

	now := s.now().UTC()
	key := fmt.Sprintf("%04d/%02d/%02d/%02d/%d-%s%s",
		now.Year(), int(now.Month()), now.Day(), now.Hour(), now.UnixNano(),
		hex.EncodeToString(b[:]), s.enc.FileExtension(),
	)
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return key, nil
}
