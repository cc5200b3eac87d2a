package evm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrInvalidArtifact = errors.New("evm: invalid contract artifact")

// Artifact is a compiled contract in hardhat artifact layout.
type Artifact struct {
	Name     string
	ABI      abi.ABI
	Bytecode []byte
}

type rawArtifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

// LoadArtifact reads <dir>/<name>.json.
func LoadArtifact(dir, name string) (Artifact, error) {
	path := filepath.Join(dir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("evm: read artifact (%s): %w", path, err)
	}
	var raw rawArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return Artifact{}, fmt.Errorf("%w: %s: %w", ErrInvalidArtifact, path, err)
	}
	if len(raw.ABI) == 0 {
		return Artifact{}, fmt.Errorf("%w: %s: missing abi", ErrInvalidArtifact, path)
	}
	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %s: %w", ErrInvalidArtifact, path, err)
	}
	code, err := hexutil.Decode(raw.Bytecode)
	if err != nil || len(code) == 0 {
		return Artifact{}, fmt.Errorf("%w: %s: bad bytecode", ErrInvalidArtifact, path)
	}
	if raw.ContractName == "" {
		raw.ContractName = name
	}
	return Artifact{Name: raw.ContractName, ABI: parsed, Bytecode: code}, nil
}
