package temporalx

import (
	"github.com/yungbote/vidscribe-backend/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string

	OrchestratorWorkflowID string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string
}

func LoadConfig() Config {
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", "localhost:7233"),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "default"),

		OrchestratorWorkflowID: envutil.String("ORCHESTRATOR_WORKFLOW_ID", "query-orchestrator"),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),
	}
}
