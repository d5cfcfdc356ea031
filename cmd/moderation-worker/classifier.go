package main

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/salehop/salehop-api/internal/config"
	"github.com/salehop/salehop-api/internal/pkg/safety"
	"github.com/salehop/salehop-api/internal/pkg/storage"
)

// buildClassifier selects the classifier named by CLASSIFIER_PROVIDER.
func buildClassifier(cfg *config.Config, store storage.ObjectStore) (safety.Classifier, error) {
	switch cfg.ClassifierProvider {
	case "vision":
		if cfg.VisionEndpoint == "" {
			return nil, fmt.Errorf("VISION_ENDPOINT is required for the vision classifier")
		}
		return safety.NewVision(safety.VisionConfig{
			Endpoint: cfg.VisionEndpoint,
			APIKey:   cfg.VisionAPIKey,
			MaxSide:  cfg.ClassifierMaxSide,
		}, store), nil

	case "tencent":
		if cfg.TencentSecretID == "" || cfg.TencentSecretKey == "" {
			return nil, fmt.Errorf("TENCENT_SECRET_ID and TENCENT_SECRET_KEY are required for the tencent classifier")
		}
		return safety.NewTencent(safety.TencentConfig{
			SecretID:  cfg.TencentSecretID,
			SecretKey: cfg.TencentSecretKey,
			Region:    cfg.TencentRegion,
			BizType:   cfg.TencentBizType,
		}, store)

	case "static":
		if cfg.IsProduction() {
			return nil, fmt.Errorf("the static classifier approves everything and cannot run in production")
		}
		log.Warn().Msg("Using static classifier: every image is rated safe")
		return safety.Static{Result: safety.Result{
			Adult:    safety.VeryUnlikely,
			Violence: safety.VeryUnlikely,
			Racy:     safety.VeryUnlikely,
			Spoof:    safety.VeryUnlikely,
			Medical:  safety.VeryUnlikely,
		}}, nil

	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.ClassifierProvider)
	}
}
