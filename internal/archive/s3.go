package archive

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "agentpost/internal/config"
	"agentpost/pkg/logger"
)

const putTimeout = 15 * time.Second

// S3Archiver writes raw settled payment evidence to an S3 bucket so a
// dispute can be resolved from the original bytes rather than whatever the
// store holds. Writes are asynchronous and best effort.
type S3Archiver struct {
	bucket string
	s3     *s3.Client
	log    *logger.Logger
}

func NewS3Archiver(ctx context.Context, cfg appconfig.ArchiveConfig, log *logger.Logger) (*S3Archiver, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				if service == s3.ServiceID {
					return aws.Endpoint{URL: endpoint, SigningRegion: cfg.Region}, nil
				}
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			}),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	return &S3Archiver{bucket: cfg.Bucket, s3: client, log: log}, nil
}

// ArchiveProof uploads the raw proof bytes keyed by txid. Implements
// services.ProofArchiver. The upload runs in the background; a failure is
// logged and the delivery stands.
func (a *S3Archiver) ArchiveProof(txid string, proof []byte) {
	body := make([]byte, len(proof))
	copy(body, proof)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), putTimeout)
		defer cancel()

		key := "proofs/" + txid + ".json"
		_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			a.log.Errorf("archiving proof %s: %v", txid, err)
		}
	}()
}
