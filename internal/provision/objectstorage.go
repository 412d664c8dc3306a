package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hostara/hostara/api/internal/config"
	"github.com/hostara/hostara/api/internal/crypto"
	"github.com/hostara/hostara/api/internal/models"
	"gorm.io/gorm"
)

// ObjectStorageProvisioner manages the tenant's dedicated bucket, IAM
// identity, access key and least-privilege policy. Creation calls are
// retried with a fixed budget and fixed delay; deprovisioning clears only
// the instance-record fields whose underlying delete actually succeeded, so
// a later retry resumes from the correct point.
type ObjectStorageProvisioner struct {
	db       *gorm.DB
	instance *models.Instance
	s3       S3API
	iam      IAMAPI
	names    *Names

	attempts       int
	delay          time.Duration
	noncurrentDays int
	corsOrigins    []string

	// overridable for tests
	sleep func(time.Duration)
}

func NewObjectStorageProvisioner(db *gorm.DB, instance *models.Instance, s3Client S3API, iamClient IAMAPI, cfg *config.Config, names *Names) *ObjectStorageProvisioner {
	return &ObjectStorageProvisioner{
		db:             db,
		instance:       instance,
		s3:             s3Client,
		iam:            iamClient,
		names:          names,
		attempts:       cfg.S3RetryAttempts,
		delay:          cfg.S3RetryDelay,
		noncurrentDays: cfg.S3NoncurrentDays,
		corsOrigins:    cfg.S3AllowedCORSOrigins,
		sleep:          time.Sleep,
	}
}

func (p *ObjectStorageProvisioner) Kind() models.BackendKind {
	return models.BackendKindObjectStorage
}

// withRetry runs fn up to the attempt budget with a fixed delay between
// attempts. An already-exists response is success and stops retrying.
func (p *ObjectStorageProvisioner) withRetry(fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if attempt > 0 {
			p.sleep(p.delay)
		}
		err := fn()
		if err == nil || isAlreadyExists(err) {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (p *ObjectStorageProvisioner) persist(updates map[string]interface{}) error {
	return p.db.Model(p.instance).Updates(updates).Error
}

func (p *ObjectStorageProvisioner) Provision(ctx context.Context) error {
	if p.instance.StorageProvisioned {
		return nil
	}

	bucket := p.names.BucketName()
	identity := p.names.StorageIdentity()
	policyName := p.names.StoragePolicyName()

	// Dedicated identity scoped to exactly this bucket
	err := p.withRetry(func() error {
		_, err := p.iam.CreateUser(ctx, &iam.CreateUserInput{UserName: awssdk.String(identity)})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create storage identity %s: %w", identity, err)
	}
	p.instance.StorageIAMUser = &identity
	if err := p.persist(map[string]interface{}{"storageIamUser": identity}); err != nil {
		return err
	}

	policy, err := bucketPolicyDocument(bucket)
	if err != nil {
		return err
	}
	err = p.withRetry(func() error {
		_, err := p.iam.PutUserPolicy(ctx, &iam.PutUserPolicyInput{
			UserName:       awssdk.String(identity),
			PolicyName:     awssdk.String(policyName),
			PolicyDocument: awssdk.String(policy),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to attach bucket policy to %s: %w", identity, err)
	}
	p.instance.StoragePolicyName = &policyName
	if err := p.persist(map[string]interface{}{"storagePolicyName": policyName}); err != nil {
		return err
	}

	// Key creation is not idempotent on the backend side, so skip it when a
	// key from an earlier partial run is already recorded
	if p.instance.StorageAccessKeyID == nil {
		var keyOut *iam.CreateAccessKeyOutput
		err = p.withRetry(func() error {
			out, err := p.iam.CreateAccessKey(ctx, &iam.CreateAccessKeyInput{UserName: awssdk.String(identity)})
			if err != nil {
				return err
			}
			keyOut = out
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to create access key for %s: %w", identity, err)
		}
		encryptedSecret, err := crypto.Encrypt(awssdk.ToString(keyOut.AccessKey.SecretAccessKey))
		if err != nil {
			return err
		}
		accessKeyID := awssdk.ToString(keyOut.AccessKey.AccessKeyId)
		p.instance.StorageAccessKeyID = &accessKeyID
		p.instance.StorageSecretKey = &encryptedSecret
		if err := p.persist(map[string]interface{}{
			"storageAccessKeyId": accessKeyID,
			"storageSecretKey":   encryptedSecret,
		}); err != nil {
			return err
		}
	}

	err = p.withRetry(func() error {
		_, err := p.s3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: awssdk.String(bucket)})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	p.instance.StorageBucket = &bucket
	if err := p.persist(map[string]interface{}{"storageBucket": bucket}); err != nil {
		return err
	}

	if _, err := p.s3.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket: awssdk.String(bucket),
		VersioningConfiguration: &s3types.VersioningConfiguration{
			Status: s3types.BucketVersioningStatusEnabled,
		},
	}); err != nil {
		return fmt.Errorf("failed to enable versioning on %s: %w", bucket, err)
	}

	if _, err := p.s3.PutBucketCors(ctx, &s3.PutBucketCorsInput{
		Bucket: awssdk.String(bucket),
		CORSConfiguration: &s3types.CORSConfiguration{
			CORSRules: []s3types.CORSRule{
				{
					AllowedOrigins: p.corsOrigins,
					AllowedMethods: []string{"GET", "PUT", "POST", "DELETE", "HEAD"},
					AllowedHeaders: []string{"*"},
					MaxAgeSeconds:  awssdk.Int32(3000),
				},
			},
		},
	}); err != nil {
		return fmt.Errorf("failed to set CORS on %s: %w", bucket, err)
	}

	if _, err := p.s3.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
		Bucket: awssdk.String(bucket),
		LifecycleConfiguration: &s3types.BucketLifecycleConfiguration{
			Rules: []s3types.LifecycleRule{
				{
					ID:     awssdk.String("expire-noncurrent-versions"),
					Status: s3types.ExpirationStatusEnabled,
					Filter: &s3types.LifecycleRuleFilter{Prefix: awssdk.String("")},
					NoncurrentVersionExpiration: &s3types.NoncurrentVersionExpiration{
						NoncurrentDays: awssdk.Int32(int32(p.noncurrentDays)),
					},
				},
			},
		},
	}); err != nil {
		return fmt.Errorf("failed to set lifecycle on %s: %w", bucket, err)
	}

	return p.persist(map[string]interface{}{"storageProvisioned": true})
}

func (p *ObjectStorageProvisioner) Deprovision(ctx context.Context, ignoreErrors bool) error {
	var errs []error
	fail := func(err error) error {
		if ignoreErrors {
			errs = append(errs, err)
			return nil
		}
		return err
	}

	if p.instance.StorageBucket != nil {
		bucket := *p.instance.StorageBucket
		err := p.deleteBucket(ctx, bucket)
		if err != nil && !isAlreadyGone(err) {
			if e := fail(fmt.Errorf("failed to delete bucket %s: %w", bucket, err)); e != nil {
				return e
			}
		} else {
			p.instance.StorageBucket = nil
			if err := p.persist(map[string]interface{}{"storageBucket": nil}); err != nil {
				return err
			}
		}
	}

	if p.instance.StorageAccessKeyID != nil && p.instance.StorageIAMUser != nil {
		_, err := p.iam.DeleteAccessKey(ctx, &iam.DeleteAccessKeyInput{
			UserName:    p.instance.StorageIAMUser,
			AccessKeyId: p.instance.StorageAccessKeyID,
		})
		if err != nil && !isAlreadyGone(err) {
			if e := fail(fmt.Errorf("failed to delete access key: %w", err)); e != nil {
				return e
			}
		} else {
			p.instance.StorageAccessKeyID = nil
			p.instance.StorageSecretKey = nil
			if err := p.persist(map[string]interface{}{
				"storageAccessKeyId": nil,
				"storageSecretKey":   nil,
			}); err != nil {
				return err
			}
		}
	}

	if p.instance.StoragePolicyName != nil && p.instance.StorageIAMUser != nil {
		_, err := p.iam.DeleteUserPolicy(ctx, &iam.DeleteUserPolicyInput{
			UserName:   p.instance.StorageIAMUser,
			PolicyName: p.instance.StoragePolicyName,
		})
		if err != nil && !isAlreadyGone(err) {
			if e := fail(fmt.Errorf("failed to delete policy: %w", err)); e != nil {
				return e
			}
		} else {
			p.instance.StoragePolicyName = nil
			if err := p.persist(map[string]interface{}{"storagePolicyName": nil}); err != nil {
				return err
			}
		}
	}

	if p.instance.StorageIAMUser != nil {
		_, err := p.iam.DeleteUser(ctx, &iam.DeleteUserInput{UserName: p.instance.StorageIAMUser})
		if err != nil && !isAlreadyGone(err) {
			if e := fail(fmt.Errorf("failed to delete storage identity: %w", err)); e != nil {
				return e
			}
		} else {
			p.instance.StorageIAMUser = nil
			if err := p.persist(map[string]interface{}{"storageIamUser": nil}); err != nil {
				return err
			}
		}
	}

	if err := p.persist(map[string]interface{}{"storageProvisioned": false}); err != nil {
		return err
	}
	p.instance.StorageProvisioned = false

	if len(errs) > 0 {
		return fmt.Errorf("object storage deprovisioning completed with %d error(s): %v", len(errs), errs)
	}
	return nil
}

// deleteBucket empties the bucket first; the backend forbids deleting a
// non-empty bucket, and versioned buckets hide objects behind versions and
// delete markers.
func (p *ObjectStorageProvisioner) deleteBucket(ctx context.Context, bucket string) error {
	input := &s3.ListObjectVersionsInput{Bucket: awssdk.String(bucket)}
	for {
		page, err := p.s3.ListObjectVersions(ctx, input)
		if err != nil {
			return err
		}

		var objects []s3types.ObjectIdentifier
		for _, version := range page.Versions {
			objects = append(objects, s3types.ObjectIdentifier{
				Key:       version.Key,
				VersionId: version.VersionId,
			})
		}
		for _, marker := range page.DeleteMarkers {
			objects = append(objects, s3types.ObjectIdentifier{
				Key:       marker.Key,
				VersionId: marker.VersionId,
			})
		}

		if len(objects) > 0 {
			if _, err := p.s3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: awssdk.String(bucket),
				Delete: &s3types.Delete{
					Objects: objects,
					Quiet:   awssdk.Bool(true),
				},
			}); err != nil {
				return err
			}
		}

		if !awssdk.ToBool(page.IsTruncated) {
			break
		}
		input.KeyMarker = page.NextKeyMarker
		input.VersionIdMarker = page.NextVersionIdMarker
	}

	_, err := p.s3.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: awssdk.String(bucket)})
	return err
}

// bucketPolicyDocument is the least-privilege policy granting access to
// exactly one bucket
func bucketPolicyDocument(bucket string) (string, error) {
	doc := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect": "Allow",
				"Action": []string{"s3:ListBucket", "s3:ListBucketVersions", "s3:GetBucketLocation"},
				"Resource": []string{
					"arn:aws:s3:::" + bucket,
				},
			},
			{
				"Effect": "Allow",
				"Action": []string{
					"s3:GetObject", "s3:PutObject", "s3:DeleteObject",
					"s3:GetObjectVersion", "s3:DeleteObjectVersion",
				},
				"Resource": []string{
					"arn:aws:s3:::" + bucket + "/*",
				},
			},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to build bucket policy: %w", err)
	}
	return string(data), nil
}
