package downloads

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tournevent/postershop/internal/domain"
)

// ObjectPresigner is the subset of *s3.PresignClient used here.
type ObjectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Config locates the artwork bucket. Endpoint is set for S3-compatible
// stores such as R2 or MinIO.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
}

// S3Presigner issues presigned GET URLs for artwork files.
type S3Presigner struct {
	presigner ObjectPresigner
	bucket    string
	prefix    string
	ttl       time.Duration
	now       func() time.Time
}

// NewS3Presigner builds an S3 client from static credentials.
func NewS3Presigner(ctx context.Context, cfg S3Config, ttl time.Duration) (*S3Presigner, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return NewS3PresignerWithClient(s3.NewPresignClient(client), cfg.Bucket, cfg.Prefix, ttl), nil
}

// NewS3PresignerWithClient wraps an existing presign client.
func NewS3PresignerWithClient(presigner ObjectPresigner, bucket, prefix string, ttl time.Duration) *S3Presigner {
	if prefix == "" {
		prefix = "artworks"
	}
	return &S3Presigner{
		presigner: presigner,
		bucket:    bucket,
		prefix:    prefix,
		ttl:       ttl,
		now:       time.Now,
	}
}

func (p *S3Presigner) Sign(ctx context.Context, orderID string, item domain.OrderItem) (Link, error) {
	key := path.Join(p.prefix, item.ProductID)
	req, err := p.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(p.bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", item.ProductID)),
	}, s3.WithPresignExpires(p.ttl))
	if err != nil {
		return Link{}, fmt.Errorf("presign %s: %w", key, err)
	}

	return Link{
		ItemID:    item.ID,
		ProductID: item.ProductID,
		Title:     item.Title,
		URL:       req.URL,
		ExpiresAt: p.now().Add(p.ttl),
	}, nil
}

var _ Signer = (*S3Presigner)(nil)
