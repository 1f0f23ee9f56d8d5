package indexer

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const engineABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "initiator", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "depositAmount", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "tokensIssued", "type": "uint256"}
    ],
    "name": "Mint",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "initiator", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "tokenAmount", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "baseReturned", "type": "uint256"}
    ],
    "name": "Burn",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "winner", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "LotteryWon",
    "type": "event"
  }
]`

var (
	engineABI     abi.ABI
	engineABIOnce sync.Once
	engineABIErr  error
)

// EngineABI returns the parsed event ABI of a deployed engine contract.
func EngineABI() (abi.ABI, error) {
	engineABIOnce.Do(func() {
		engineABI, engineABIErr = abi.JSON(strings.NewReader(engineABIJSON))
	})
	return engineABI, engineABIErr
}
