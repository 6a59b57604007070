package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pegbridge/pegbridge/common"
	"github.com/pegbridge/pegbridge/core"
	"github.com/pegbridge/pegbridge/node"
	"github.com/pegbridge/pegbridge/store/database"
	"github.com/pegbridge/pegbridge/store/database/backend"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start PegBridge node.",
	Run:   runStart,
}

func init() {
	RootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) {
	db, err := openDatabase()
	if err != nil {
		panic(fmt.Sprintf("Failed to open the db, err: %v", err))
	}
	defer db.Close()

	validators, signerKeys, err := loadValidators()
	if err != nil {
		panic(fmt.Sprintf("Failed to load validators, err: %v", err))
	}

	n, err := node.NewNode(&node.Params{
		DB:         db,
		Validators: validators,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to create node, err: %v", err))
	}

	for addr, xpub := range signerKeys {
		if err := n.Registry.SetSignerKey(addr, xpub); err != nil {
			panic(fmt.Sprintf("Failed to register signer key, err: %v", err))
		}
	}

	// Bootstrap the queue if a nonempty signatory set already exists.
	if err := n.AdvanceStep(0); err != nil {
		panic(fmt.Sprintf("Failed to advance checkpoint queue, err: %v", err))
	}

	n.Start(context.Background())
	n.Wait()
}

func openDatabase() (database.Database, error) {
	dataPath := viper.GetString(common.CfgDataPath)
	if dataPath == "" {
		dataPath = cfgPath
	}
	dbPath := path.Join(dataPath, "db")

	if viper.GetString(common.CfgStorageBackend) == "badger" {
		return backend.NewBadgerDatabase(dbPath)
	}
	cache := viper.GetInt(common.CfgStorageLevelDBCacheMB)
	return backend.NewLDBDatabase(dbPath, cache, 0)
}

type validatorEntry struct {
	Address     common.Address `json:"address"`
	VotingPower uint64         `json:"voting_power"`
	Xpub        string         `json:"xpub"`
}

// loadValidators reads the validator power table and registered Bitcoin keys
// from validators.json in the config directory.
func loadValidators() (*core.ValidatorSet, map[common.Address]string, error) {
	raw, err := os.ReadFile(path.Join(cfgPath, "validators.json"))
	if err != nil {
		return nil, nil, err
	}

	entries := []validatorEntry{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, nil, err
	}

	validators := core.NewValidatorSet()
	signerKeys := make(map[common.Address]string)
	for _, entry := range entries {
		validators.AddValidator(core.NewValidator(entry.Address.Hex(), entry.VotingPower))
		if entry.Xpub != "" {
			signerKeys[entry.Address] = entry.Xpub
		}
	}
	return validators, signerKeys, nil
}
