package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hostara/hostara/api/internal/config"
	"github.com/hostara/hostara/api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	createBucketErr  error
	createBucketTrys int
	versioningCalls  int
	corsCalls        int
	lifecycleCalls   int
	listPages        []*s3.ListObjectVersionsOutput
	listCalls        int
	deletedObjects   int
	bucketDeleted    bool
	deleteBucketErr  error
}

func (f *fakeS3) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.createBucketTrys++
	if f.createBucketErr != nil {
		return nil, f.createBucketErr
	}
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) PutBucketVersioning(ctx context.Context, params *s3.PutBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error) {
	f.versioningCalls++
	return &s3.PutBucketVersioningOutput{}, nil
}

func (f *fakeS3) PutBucketCors(ctx context.Context, params *s3.PutBucketCorsInput, optFns ...func(*s3.Options)) (*s3.PutBucketCorsOutput, error) {
	f.corsCalls++
	return &s3.PutBucketCorsOutput{}, nil
}

func (f *fakeS3) PutBucketLifecycleConfiguration(ctx context.Context, params *s3.PutBucketLifecycleConfigurationInput, optFns ...func(*s3.Options)) (*s3.PutBucketLifecycleConfigurationOutput, error) {
	f.lifecycleCalls++
	return &s3.PutBucketLifecycleConfigurationOutput{}, nil
}

func (f *fakeS3) ListObjectVersions(ctx context.Context, params *s3.ListObjectVersionsInput, optFns ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error) {
	if f.listCalls >= len(f.listPages) {
		return &s3.ListObjectVersionsOutput{IsTruncated: awssdk.Bool(false)}, nil
	}
	page := f.listPages[f.listCalls]
	f.listCalls++
	return page, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.deletedObjects += len(params.Delete.Objects)
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	if f.deleteBucketErr != nil {
		return nil, f.deleteBucketErr
	}
	f.bucketDeleted = true
	return &s3.DeleteBucketOutput{}, nil
}

type fakeIAM struct {
	createUserErr   error
	createUserTrys  int
	policies        map[string]string
	accessKeysMade  int
	createKeyErr    error
	deletedKeys     int
	deletedPolicies int
	deletedUsers    int
	deleteUserErr   error
}

func (f *fakeIAM) CreateUser(ctx context.Context, params *iam.CreateUserInput, optFns ...func(*iam.Options)) (*iam.CreateUserOutput, error) {
	f.createUserTrys++
	if f.createUserErr != nil {
		return nil, f.createUserErr
	}
	return &iam.CreateUserOutput{}, nil
}

func (f *fakeIAM) PutUserPolicy(ctx context.Context, params *iam.PutUserPolicyInput, optFns ...func(*iam.Options)) (*iam.PutUserPolicyOutput, error) {
	if f.policies == nil {
		f.policies = map[string]string{}
	}
	f.policies[awssdk.ToString(params.PolicyName)] = awssdk.ToString(params.PolicyDocument)
	return &iam.PutUserPolicyOutput{}, nil
}

func (f *fakeIAM) CreateAccessKey(ctx context.Context, params *iam.CreateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error) {
	if f.createKeyErr != nil {
		return nil, f.createKeyErr
	}
	f.accessKeysMade++
	return &iam.CreateAccessKeyOutput{
		AccessKey: &iamtypes.AccessKey{
			AccessKeyId:     awssdk.String("AKIATEST"),
			SecretAccessKey: awssdk.String("secret-value"),
		},
	}, nil
}

func (f *fakeIAM) DeleteAccessKey(ctx context.Context, params *iam.DeleteAccessKeyInput, optFns ...func(*iam.Options)) (*iam.DeleteAccessKeyOutput, error) {
	f.deletedKeys++
	return &iam.DeleteAccessKeyOutput{}, nil
}

func (f *fakeIAM) DeleteUserPolicy(ctx context.Context, params *iam.DeleteUserPolicyInput, optFns ...func(*iam.Options)) (*iam.DeleteUserPolicyOutput, error) {
	f.deletedPolicies++
	return &iam.DeleteUserPolicyOutput{}, nil
}

func (f *fakeIAM) DeleteUser(ctx context.Context, params *iam.DeleteUserInput, optFns ...func(*iam.Options)) (*iam.DeleteUserOutput, error) {
	if f.deleteUserErr != nil {
		return nil, f.deleteUserErr
	}
	f.deletedUsers++
	return &iam.DeleteUserOutput{}, nil
}

func storageTestConfig() *config.Config {
	return &config.Config{
		S3RetryAttempts:      3,
		S3RetryDelay:         time.Millisecond,
		S3NoncurrentDays:     30,
		S3AllowedCORSOrigins: []string{"https://example.com"},
		AppDatabases:         testAppDatabases,
	}
}

func newTestStorageProvisioner(t *testing.T, s3Fake *fakeS3, iamFake *fakeIAM) (*ObjectStorageProvisioner, *models.Instance) {
	t.Helper()
	db, instance, names := setupProvisionTest(t)
	cfg := storageTestConfig()
	config.Set(cfg)
	p := NewObjectStorageProvisioner(db, instance, s3Fake, iamFake, cfg, names)
	p.sleep = func(time.Duration) {}
	return p, instance
}

func TestObjectStorageProvisionHappyPath(t *testing.T) {
	s3Fake := &fakeS3{}
	iamFake := &fakeIAM{}
	p, instance := newTestStorageProvisioner(t, s3Fake, iamFake)

	require.NoError(t, p.Provision(context.Background()))

	assert.Equal(t, 1, iamFake.createUserTrys)
	assert.Equal(t, 1, iamFake.accessKeysMade)
	assert.Contains(t, iamFake.policies, "hostara-acme-shop-bucket-access")
	assert.Contains(t, iamFake.policies["hostara-acme-shop-bucket-access"], "arn:aws:s3:::hostara-acme-shop")
	assert.Equal(t, 1, s3Fake.createBucketTrys)
	assert.Equal(t, 1, s3Fake.versioningCalls)
	assert.Equal(t, 1, s3Fake.corsCalls)
	assert.Equal(t, 1, s3Fake.lifecycleCalls)

	reloaded := reloadInstance(t, p.db, instance.ID)
	assert.True(t, reloaded.StorageProvisioned)
	assert.Equal(t, "hostara-acme-shop", *reloaded.StorageBucket)
	assert.Equal(t, "hostara-acme-shop", *reloaded.StorageIAMUser)
	assert.Equal(t, "hostara-acme-shop-bucket-access", *reloaded.StoragePolicyName)
	assert.Equal(t, "AKIATEST", *reloaded.StorageAccessKeyID)
	assert.NotNil(t, reloaded.StorageSecretKey)
}

func TestObjectStorageProvisionToleratesAlreadyExists(t *testing.T) {
	s3Fake := &fakeS3{
		createBucketErr: &smithy.GenericAPIError{Code: "BucketAlreadyOwnedByYou"},
	}
	iamFake := &fakeIAM{
		createUserErr: &smithy.GenericAPIError{Code: "EntityAlreadyExists"},
	}
	p, instance := newTestStorageProvisioner(t, s3Fake, iamFake)

	require.NoError(t, p.Provision(context.Background()))

	// Already-exists is success on the first attempt, never retried
	assert.Equal(t, 1, iamFake.createUserTrys)
	assert.Equal(t, 1, s3Fake.createBucketTrys)
	assert.True(t, reloadInstance(t, p.db, instance.ID).StorageProvisioned)
}

func TestObjectStorageProvisionRetriesTransientErrors(t *testing.T) {
	iamFake := &fakeIAM{createUserErr: errors.New("throttled")}
	p, instance := newTestStorageProvisioner(t, &fakeS3{}, iamFake)

	err := p.Provision(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, iamFake.createUserTrys)
	assert.False(t, reloadInstance(t, p.db, instance.ID).StorageProvisioned)
}

func TestObjectStorageProvisionSkipsRecordedAccessKey(t *testing.T) {
	iamFake := &fakeIAM{}
	p, instance := newTestStorageProvisioner(t, &fakeS3{}, iamFake)

	recorded := "AKIAOLD"
	p.instance.StorageAccessKeyID = &recorded

	require.NoError(t, p.Provision(context.Background()))
	assert.Equal(t, 0, iamFake.accessKeysMade)
	assert.True(t, reloadInstance(t, p.db, instance.ID).StorageProvisioned)
}

func TestObjectStorageDeprovisionClearsFields(t *testing.T) {
	s3Fake := &fakeS3{
		listPages: []*s3.ListObjectVersionsOutput{
			{
				Versions: []s3types.ObjectVersion{
					{Key: awssdk.String("a.txt"), VersionId: awssdk.String("v1")},
					{Key: awssdk.String("a.txt"), VersionId: awssdk.String("v2")},
				},
				DeleteMarkers: []s3types.DeleteMarkerEntry{
					{Key: awssdk.String("b.txt"), VersionId: awssdk.String("v3")},
				},
				IsTruncated: awssdk.Bool(false),
			},
		},
	}
	iamFake := &fakeIAM{}
	p, instance := newTestStorageProvisioner(t, s3Fake, iamFake)

	bucket, user, policy, keyID, secret := "hostara-acme-shop", "hostara-acme-shop", "hostara-acme-shop-bucket-access", "AKIATEST", "enc"
	p.instance.StorageBucket = &bucket
	p.instance.StorageIAMUser = &user
	p.instance.StoragePolicyName = &policy
	p.instance.StorageAccessKeyID = &keyID
	p.instance.StorageSecretKey = &secret
	require.NoError(t, p.db.Model(p.instance).Updates(map[string]interface{}{
		"storageBucket":      bucket,
		"storageIamUser":     user,
		"storagePolicyName":  policy,
		"storageAccessKeyId": keyID,
		"storageSecretKey":   secret,
		"storageProvisioned": true,
	}).Error)

	require.NoError(t, p.Deprovision(context.Background(), false))

	// Bucket purge removed every version and delete marker first
	assert.Equal(t, 3, s3Fake.deletedObjects)
	assert.True(t, s3Fake.bucketDeleted)
	assert.Equal(t, 1, iamFake.deletedKeys)
	assert.Equal(t, 1, iamFake.deletedPolicies)
	assert.Equal(t, 1, iamFake.deletedUsers)

	reloaded := reloadInstance(t, p.db, instance.ID)
	assert.Nil(t, reloaded.StorageBucket)
	assert.Nil(t, reloaded.StorageIAMUser)
	assert.Nil(t, reloaded.StoragePolicyName)
	assert.Nil(t, reloaded.StorageAccessKeyID)
	assert.Nil(t, reloaded.StorageSecretKey)
	assert.False(t, reloaded.StorageProvisioned)
}

func TestObjectStorageDeprovisionKeepsFieldOnFailure(t *testing.T) {
	s3Fake := &fakeS3{deleteBucketErr: errors.New("access denied")}
	p, instance := newTestStorageProvisioner(t, s3Fake, &fakeIAM{})

	bucket := "hostara-acme-shop"
	p.instance.StorageBucket = &bucket
	require.NoError(t, p.db.Model(p.instance).Update("storageBucket", bucket).Error)

	require.Error(t, p.Deprovision(context.Background(), false))

	// The bucket field survives so a retry resumes from the failed step
	reloaded := reloadInstance(t, p.db, instance.ID)
	assert.NotNil(t, reloaded.StorageBucket)
}

func TestObjectStorageDeprovisionIgnoreErrorsContinues(t *testing.T) {
	s3Fake := &fakeS3{deleteBucketErr: errors.New("access denied")}
	iamFake := &fakeIAM{}
	p, instance := newTestStorageProvisioner(t, s3Fake, iamFake)

	bucket, user := "hostara-acme-shop", "hostara-acme-shop"
	p.instance.StorageBucket = &bucket
	p.instance.StorageIAMUser = &user
	require.NoError(t, p.db.Model(p.instance).Updates(map[string]interface{}{
		"storageBucket":  bucket,
		"storageIamUser": user,
	}).Error)

	err := p.Deprovision(context.Background(), true)
	require.Error(t, err)

	// The identity delete still ran and its field was cleared; the bucket
	// field survives for the retry
	assert.Equal(t, 1, iamFake.deletedUsers)
	reloaded := reloadInstance(t, p.db, instance.ID)
	assert.NotNil(t, reloaded.StorageBucket)
	assert.Nil(t, reloaded.StorageIAMUser)
}

func TestObjectStorageDeprovisionToleratesAlreadyGone(t *testing.T) {
	s3Fake := &fakeS3{deleteBucketErr: &smithy.GenericAPIError{Code: "NoSuchBucket"}}
	p, instance := newTestStorageProvisioner(t, s3Fake, &fakeIAM{})

	bucket := "hostara-acme-shop"
	p.instance.StorageBucket = &bucket
	require.NoError(t, p.db.Model(p.instance).Update("storageBucket", bucket).Error)

	require.NoError(t, p.Deprovision(context.Background(), false))
	assert.Nil(t, reloadInstance(t, p.db, instance.ID).StorageBucket)
}
