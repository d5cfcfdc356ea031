package safety

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	ims "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/ims/v20201229"
)

const presignTTL = 10 * time.Minute

// TencentConfig configures the Tencent Cloud IMS classifier.
type TencentConfig struct {
	SecretID  string
	SecretKey string
	Region    string
	BizType   string
}

// Presigner issues short-lived URLs the remote classifier can fetch.
type Presigner interface {
	PresignGet(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
}

type imsAPI interface {
	ImageModerationWithContext(ctx context.Context, request *ims.ImageModerationRequest) (*ims.ImageModerationResponse, error)
}

// Tencent classifies images with Tencent Cloud Image Moderation.
type Tencent struct {
	client    imsAPI
	presigner Presigner
	bizType   string
}

// NewTencent creates the IMS client.
func NewTencent(config TencentConfig, presigner Presigner) (*Tencent, error) {
	credential := common.NewCredential(config.SecretID, config.SecretKey)

	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "ims.tencentcloudapi.com"

	client, err := ims.NewClient(credential, config.Region, cpf)
	if err != nil {
		return nil, fmt.Errorf("failed to create ims client: %w", err)
	}

	return &Tencent{client: client, presigner: presigner, bizType: config.BizType}, nil
}

func (t *Tencent) Classify(ctx context.Context, loc Locator) (Result, error) {
	fileURL, err := t.presigner.PresignGet(ctx, loc.Bucket, loc.Key, presignTTL)
	if err != nil {
		return Result{}, fmt.Errorf("%w: presign %s: %v", ErrUnavailable, loc, err)
	}

	req := ims.NewImageModerationRequest()
	req.FileUrl = common.StringPtr(fileURL)
	req.DataId = common.StringPtr(loc.String())
	if t.bizType != "" {
		req.BizType = common.StringPtr(t.bizType)
	}

	resp, err := t.client.ImageModerationWithContext(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: image moderation: %v", ErrUnavailable, err)
	}
	if resp == nil || resp.Response == nil {
		return Result{}, fmt.Errorf("%w: empty image moderation response", ErrUnavailable)
	}

	return mapTencentResponse(resp.Response), nil
}

// mapTencentResponse folds IMS labels into SafeSearch-style ratings. Each
// category keeps the highest rating seen across the top label and the
// per-label results.
func mapTencentResponse(r *ims.ImageModerationResponseParams) Result {
	result := Result{
		Adult:    VeryUnlikely,
		Violence: VeryUnlikely,
		Racy:     VeryUnlikely,
		Spoof:    VeryUnlikely,
		Medical:  VeryUnlikely,
	}

	apply := func(label *string, score int64) {
		if label == nil {
			return
		}
		rating := scoreLikelihood(score)

		var target *Likelihood
		switch strings.ToLower(*label) {
		case "porn":
			target = &result.Adult
		case "sexy":
			target = &result.Racy
		case "terror", "illegal":
			target = &result.Violence
		default:
			return
		}
		if rating > *target {
			*target = rating
		}
	}

	var top int64
	if r.Score != nil {
		top = *r.Score
	}
	apply(r.Label, top)

	for _, lr := range r.LabelResults {
		if lr == nil {
			continue
		}
		var score int64
		if lr.Score != nil {
			score = int64(*lr.Score)
		}
		apply(lr.Label, score)
	}
	return result
}

func scoreLikelihood(score int64) Likelihood {
	switch {
	case score >= 90:
		return VeryLikely
	case score >= 70:
		return Likely
	case score >= 50:
		return Possible
	case score >= 20:
		return Unlikely
	default:
		return VeryUnlikely
	}
}
