package conventions

import (
	"path/filepath"

	"k8s.io/client-go/util/homedir"
)

const (
	// DefaultDataDir is the default infraware data directory name (relative to home).
	DefaultDataDir = ".infraware"
	// DBFile is the SQLite ledger filename.
	DBFile = "infraware.db"
	// ArtifactsDir is the subdirectory of the artifact store.
	ArtifactsDir = "artifacts"

	// SpecFile is the filename of the stored intermediate spec.
	SpecFile = "spec.yaml"

	// DefaultListenAddress is the default address of the HTTP API.
	DefaultListenAddress = ":8080"
)

// DataDir returns the default data directory.
func DataDir() string {
	return filepath.Join(homedir.HomeDir(), DefaultDataDir)
}

// DBPath returns the path of the SQLite ledger inside a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}

// ArtifactsPath returns the path of the artifact store inside a data directory.
func ArtifactsPath(dataDir string) string {
	return filepath.Join(dataDir, ArtifactsDir)
}
