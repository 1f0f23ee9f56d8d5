package indexer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"goldpeg/internal/model"
)

// Decoder turns engine contract logs into events.
type Decoder struct {
	engineABI   abi.ABI
	topicToName map[common.Hash]string
}

func NewDecoder() (*Decoder, error) {
	engineABI, err := EngineABI()
	if err != nil {
		return nil, err
	}
	topicToName := map[common.Hash]string{
		engineABI.Events["Mint"].ID:       model.EventMint,
		engineABI.Events["Burn"].ID:       model.EventBurn,
		engineABI.Events["LotteryWon"].ID: model.EventLotteryWon,
	}
	return &Decoder{engineABI: engineABI, topicToName: topicToName}, nil
}

// Topics returns the topic0 values the decoder understands.
func (d *Decoder) Topics() []common.Hash {
	return []common.Hash{
		d.engineABI.Events["Mint"].ID,
		d.engineABI.Events["Burn"].ID,
		d.engineABI.Events["LotteryWon"].ID,
	}
}

// Decode converts a log into an Event. The timestamp is the block time.
func (d *Decoder) Decode(chainID uint64, log types.Log, timestamp uint64) (model.Event, error) {
	if len(log.Topics) == 0 {
		return model.Event{}, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[log.Topics[0]]
	if !ok {
		return model.Event{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}

	var (
		decoded interface{}
		err     error
	)
	switch name {
	case model.EventMint:
		decoded, err = d.decodeMint(log)
	case model.EventBurn:
		decoded, err = d.decodeBurn(log)
	case model.EventLotteryWon:
		decoded, err = d.decodeLotteryWon(log)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("decode %s: %w", name, err)
	}

	return model.Event{
		EventName:   name,
		Timestamp:   timestamp,
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Decoded:     decoded,
	}, nil
}

func (d *Decoder) decodeMint(log types.Log) (model.MintEventData, error) {
	initiator, values, err := d.split(d.engineABI.Events["Mint"], log, 2)
	if err != nil {
		return model.MintEventData{}, err
	}
	return model.MintEventData{
		Initiator:     initiator.Hex(),
		DepositAmount: values[0].String(),
		TokensIssued:  values[1].String(),
	}, nil
}

func (d *Decoder) decodeBurn(log types.Log) (model.BurnEventData, error) {
	initiator, values, err := d.split(d.engineABI.Events["Burn"], log, 2)
	if err != nil {
		return model.BurnEventData{}, err
	}
	return model.BurnEventData{
		Initiator:    initiator.Hex(),
		TokenAmount:  values[0].String(),
		BaseReturned: values[1].String(),
	}, nil
}

func (d *Decoder) decodeLotteryWon(log types.Log) (model.LotteryWonEventData, error) {
	winner, values, err := d.split(d.engineABI.Events["LotteryWon"], log, 1)
	if err != nil {
		return model.LotteryWonEventData{}, err
	}
	return model.LotteryWonEventData{
		Winner: winner.Hex(),
		Amount: values[0].String(),
	}, nil
}

// split parses the single indexed address and the non-indexed uint256 values of an event.
func (d *Decoder) split(event abi.Event, log types.Log, want int) (common.Address, []*big.Int, error) {
	indexedArgs := indexedArguments(event.Inputs)
	if len(indexedArgs) != 1 {
		return common.Address{}, nil, fmt.Errorf("%s has %d indexed inputs", event.Name, len(indexedArgs))
	}
	if len(log.Topics) != 2 {
		return common.Address{}, nil, fmt.Errorf("expected 2 topics, got %d", len(log.Topics))
	}
	fields := map[string]interface{}{}
	if err := abi.ParseTopicsIntoMap(fields, indexedArgs, log.Topics[1:]); err != nil {
		return common.Address{}, nil, fmt.Errorf("parse topics: %w", err)
	}
	who, ok := fields[indexedArgs[0].Name].(common.Address)
	if !ok {
		return common.Address{}, nil, fmt.Errorf("indexed %s type %T", indexedArgs[0].Name, fields[indexedArgs[0].Name])
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	if len(values) != want {
		return common.Address{}, nil, fmt.Errorf("unexpected %s values: %d", event.Name, len(values))
	}
	out := make([]*big.Int, 0, len(values))
	for _, value := range values {
		n, ok := value.(*big.Int)
		if !ok {
			return common.Address{}, nil, fmt.Errorf("unsupported int type %T", value)
		}
		out = append(out, n)
	}
	return who, out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
