package host

import (
	"context"
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/holiman/uint256"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/log"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/vm"
)

// readInfo is the out-parameter layout of the read host function: guest
// pointer to the data followed by its length, little-endian.
func encodeReadInfo(dataPtr, dataSize uint32) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint32(out[0:4], dataPtr)
	binary.LittleEndian.PutUint32(out[4:8], dataSize)
	return out
}

// leU128ToU512 widens a guest-supplied little-endian u128 amount.
func leU128ToU512(b []byte) types.U512 {
	var be [16]byte
	for i := 0; i < 16; i++ {
		be[i] = b[15-i]
	}
	var v uint256.Int
	v.SetBytes(be[:])
	return types.U512FromUint256(&v)
}

// leU128ToU64 narrows a guest-supplied little-endian u128 amount. The
// second return is false when the high half is nonzero.
func leU128ToU64(b []byte) (uint64, bool) {
	if binary.LittleEndian.Uint64(b[8:16]) != 0 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b[:8]), true
}

// Write stores a value under a callee-scoped keyspace entry.
func Write(caller vm.Caller, keySpace uint64, keyPtr, keySize, valuePtr, valueSize uint32) (uint32, *vm.VMError) {
	ctx := caller.Context()
	if err := chargeHostFunction(caller, ctx.Costs.Write,
		keySpace, uint64(keyPtr), uint64(keySize), uint64(valuePtr), uint64(valueSize)); err != nil {
		return 0, err
	}

	payload, err := caller.MemoryRead(keyPtr, keySize)
	if err != nil {
		return 0, asVMError(err)
	}

	switch keySpace {
	case KeyspaceNamedKey:
		if !utf8.Valid(payload) {
			return types.HostErrorNotFound, nil
		}
	case KeyspacePaymentInfo:
		if !utf8.Valid(payload) {
			return types.HostErrorNotFound, nil
		}
		// Payment info describes an entry point; it only makes sense for
		// exports the module actually has.
		if !caller.HasExport(string(payload)) {
			return types.HostErrorNotFound, nil
		}
	}

	key, ok := keyspaceKey(ctx, keySpace, payload)
	if !ok {
		return types.HostErrorNotFound, nil
	}

	value, err := caller.MemoryRead(valuePtr, valueSize)
	if err != nil {
		return 0, asVMError(err)
	}

	var stored types.StoredValue
	if keySpace == KeyspacePaymentInfo {
		if len(value) != 1 || value[0] > EntryPointPaymentSelfOnward {
			return types.HostErrorInvalidInput, nil
		}
		stored = types.CLValueStoredValue(types.CLTypeU64, value)
	} else {
		stored = types.CLValueStoredValue(types.CLTypeBytes, value)
	}

	ctx.TrackingCopy.Write(key, stored)
	return types.HostErrorSuccess, nil
}

// Read resolves a keyspace entry and hands the raw bytes to the guest
// through its allocator callback.
func Read(caller vm.Caller, keyTag uint64, keyPtr, keySize, infoPtr, cbAlloc, allocCtx uint32) (uint32, *vm.VMError) {
	ctx := caller.Context()
	if err := chargeHostFunction(caller, ctx.Costs.Read,
		keyTag, uint64(keyPtr), uint64(keySize), uint64(infoPtr), uint64(cbAlloc), uint64(allocCtx)); err != nil {
		return 0, err
	}

	payload, err := caller.MemoryRead(keyPtr, keySize)
	if err != nil {
		return 0, asVMError(err)
	}

	switch keyTag {
	case KeyspaceNamedKey, KeyspacePaymentInfo:
		if !utf8.Valid(payload) {
			return types.HostErrorInvalidData, nil
		}
		if keyTag == KeyspacePaymentInfo && !caller.HasExport(string(payload)) {
			return types.HostErrorNotFound, nil
		}
	}

	key, ok := keyspaceKey(ctx, keyTag, payload)
	if !ok {
		return types.HostErrorInvalidInput, nil
	}

	value, err := ctx.TrackingCopy.Read(key)
	if err != nil {
		return 0, vm.InternalError(err)
	}
	if value == nil {
		return types.HostErrorNotFound, nil
	}
	if value.Tag != types.StoredValueTagCLValue || value.CLValue == nil {
		return types.HostErrorInvalidData, nil
	}
	raw := value.CLValue.Bytes

	outPtr, verr := allocOut(caller, cbAlloc, len(raw), allocCtx)
	if verr != nil {
		return 0, verr
	}
	if err := caller.MemoryWrite(infoPtr, encodeReadInfo(outPtr, uint32(len(raw)))); err != nil {
		return 0, asVMError(err)
	}
	if outPtr != 0 {
		if err := caller.MemoryWrite(outPtr, raw); err != nil {
			return 0, asVMError(err)
		}
	}
	return types.HostErrorSuccess, nil
}

// Remove prunes a keyspace entry.
func Remove(caller vm.Caller, keySpace uint64, keyPtr, keySize uint32) (uint32, *vm.VMError) {
	ctx := caller.Context()
	if err := chargeHostFunction(caller, ctx.Costs.Remove,
		keySpace, uint64(keyPtr), uint64(keySize)); err != nil {
		return 0, err
	}

	payload, err := caller.MemoryRead(keyPtr, keySize)
	if err != nil {
		return 0, asVMError(err)
	}
	key, ok := keyspaceKey(ctx, keySpace, payload)
	if !ok {
		return types.HostErrorNotFound, nil
	}
	value, err := ctx.TrackingCopy.Read(key)
	if err != nil {
		return 0, vm.InternalError(err)
	}
	if value == nil {
		return types.HostErrorNotFound, nil
	}
	ctx.TrackingCopy.Prune(key)
	return types.HostErrorSuccess, nil
}

// CopyInput copies the invocation input into a guest buffer. Returns the
// address one past the copied bytes, or the allocator's answer when it
// declined.
func CopyInput(caller vm.Caller, cbAlloc, allocCtx uint32) (uint32, *vm.VMError) {
	ctx := caller.Context()
	input := ctx.Input

	outPtr, verr := allocOut(caller, cbAlloc, len(input), allocCtx)
	if verr != nil {
		return 0, verr
	}
	if err := chargeHostFunction(caller, ctx.Costs.CopyInput,
		uint64(outPtr), uint64(len(input))); err != nil {
		return 0, err
	}
	if outPtr == 0 {
		return 0, nil
	}
	if err := caller.MemoryWrite(outPtr, input); err != nil {
		return 0, asVMError(err)
	}
	return outPtr + uint32(len(input)), nil
}

// Ret ends guest execution, optionally carrying output data and the
// revert flag. It never returns control to the guest.
func Ret(caller vm.Caller, flags, dataPtr, dataLen uint32) *vm.VMError {
	ctx := caller.Context()
	if err := chargeHostFunction(caller, ctx.Costs.Ret,
		uint64(dataPtr), uint64(dataLen)); err != nil {
		return err
	}
	var data []byte
	if dataPtr != 0 {
		var err error
		data, err = caller.MemoryRead(dataPtr, dataLen)
		if err != nil {
			return asVMError(err)
		}
	}
	return vm.ReturnError(flags, data)
}

// Print forwards a guest diagnostic message to the host log.
func Print(caller vm.Caller, msgPtr, msgSize uint32) *vm.VMError {
	ctx := caller.Context()
	if err := chargeHostFunction(caller, ctx.Costs.Print,
		uint64(msgPtr), uint64(msgSize)); err != nil {
		return err
	}
	msg, err := caller.MemoryRead(msgPtr, msgSize)
	if err != nil {
		return asVMError(err)
	}
	log.Info(log.HostMonitoring, "guest print", "callee", ctx.Callee, "message", string(msg))
	return nil
}

// entityMainPurse resolves the main purse of the entity record stored
// under key. Second result is false when the entity does not exist.
func entityMainPurse(ctx *vm.Context, key types.Key) ([32]byte, bool, *vm.VMError) {
	value, err := ctx.TrackingCopy.Read(key)
	if err != nil {
		return [32]byte{}, false, vm.InternalError(err)
	}
	if value == nil || value.Tag != types.StoredValueTagAccount || value.Account == nil {
		return [32]byte{}, false, nil
	}
	return value.Account.MainPurse, true, nil
}

// purseBalance reads the balance of a purse, defaulting to zero for
// untouched purses.
func purseBalance(ctx *vm.Context, purse [32]byte) (types.U512, *vm.VMError) {
	value, err := ctx.TrackingCopy.Read(types.BalanceKey(purse))
	if err != nil {
		return types.U512{}, vm.InternalError(err)
	}
	if value == nil {
		return types.U512{}, nil
	}
	amount, err := value.AsU512()
	if err != nil {
		return types.U512{}, vm.InternalError(err)
	}
	return amount, nil
}

// EnvBalance writes the balance of the addressed entity as a
// little-endian u128. Returns 1 when the balance was written, 0 when the
// entity could not be resolved.
func EnvBalance(caller vm.Caller, entityKind, addrPtr, addrLen, outputPtr uint32) (uint32, *vm.VMError) {
	ctx := caller.Context()
	if err := chargeHostFunction(caller, ctx.Costs.EnvBalance); err != nil {
		return 0, err
	}
	if addrLen != 32 {
		return 0, nil
	}
	addrBytes, err := caller.MemoryRead(addrPtr, addrLen)
	if err != nil {
		return 0, asVMError(err)
	}
	var addr [32]byte
	copy(addr[:], addrBytes)

	var key types.Key
	switch types.EntityKind(entityKind) {
	case types.EntityKindAccount:
		key = types.AccountKey(addr)
	case types.EntityKindContract:
		key = types.HashKey(addr)
	default:
		return 0, nil
	}

	purse, found, verr := entityMainPurse(ctx, key)
	if verr != nil {
		return 0, verr
	}
	if !found {
		return 0, nil
	}
	balance, verr := purseBalance(ctx, purse)
	if verr != nil {
		return 0, verr
	}
	if !balance.IsUint64() {
		return 0, vm.InternalError(fmt.Errorf("balance %s does not fit the u64 output", balance))
	}

	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out, balance.Uint64())
	if err := caller.MemoryWrite(outputPtr, out); err != nil {
		return 0, asVMError(err)
	}
	return 1, nil
}

// EnvInfo serializes the execution environment bundle into guest memory.
func EnvInfo(caller vm.Caller, infoPtr, infoSize uint32) (uint32, *vm.VMError) {
	ctx := caller.Context()
	if err := chargeHostFunction(caller, ctx.Costs.EnvInfo,
		uint64(infoPtr), uint64(infoSize)); err != nil {
		return 0, err
	}
	if infoSize < types.EnvInfoSize {
		return types.HostErrorInvalidInput, nil
	}

	balance := types.U512{}
	if purse, found, verr := entityMainPurse(ctx, ctx.Callee); verr != nil {
		return 0, verr
	} else if found {
		if balance, verr = purseBalance(ctx, purse); verr != nil {
			return 0, verr
		}
	}

	info := types.EnvInfo{
		BlockTime:        ctx.BlockTime,
		TransferredValue: ctx.TransferredValue,
		Balance:          balance.Uint64(),
		CallerAddr:       ctx.Caller.Address,
		CallerKind:       uint32(ctx.CallerKind()),
	}
	if err := caller.MemoryWrite(infoPtr, info.Serialize()); err != nil {
		return 0, asVMError(err)
	}
	return types.HostErrorSuccess, nil
}

// Transfer moves motes from the callee's main purse to the addressed
// account. The result is 0 on success or a CallError code.
func Transfer(caller vm.Caller, addrPtr, addrLen, amountPtr uint32) (uint32, *vm.VMError) {
	ctx := caller.Context()
	if err := chargeHostFunction(caller, ctx.Costs.Transfer,
		uint64(addrPtr), uint64(addrLen), uint64(amountPtr)); err != nil {
		return 0, err
	}
	if addrLen != 32 {
		return uint32(vm.CallErrorNotCallable), nil
	}

	amountBytes := make([]byte, 16)
	if err := caller.MemoryReadInto(amountPtr, amountBytes); err != nil {
		return 0, asVMError(err)
	}
	amount := leU128ToU512(amountBytes)

	addrBytes, err := caller.MemoryRead(addrPtr, addrLen)
	if err != nil {
		return 0, asVMError(err)
	}
	var target [32]byte
	copy(target[:], addrBytes)

	targetPurse, found, verr := entityMainPurse(ctx, types.AccountKey(target))
	if verr != nil {
		return 0, verr
	}
	if !found {
		log.Warn(log.HostMonitoring, "transfer recipient not found", "target", types.AccountKey(target))
		return uint32(vm.CallErrorNotCallable), nil
	}

	calleePurse, found, verr := entityMainPurse(ctx, ctx.Callee)
	if verr != nil {
		return 0, verr
	}
	if !found {
		return uint32(vm.CallErrorNotCallable), nil
	}

	transfer, err := MintTransfer(ctx.TrackingCopy, ctx.TransactionHash, MintTransferArgs{
		From:   ctx.CalleeAddr(),
		To:     target,
		Source: calleePurse,
		Target: targetPurse,
		Amount: amount,
	})
	switch {
	case err == nil:
		ctx.Transfers = append(ctx.Transfers, transfer)
		return types.HostErrorSuccess, nil
	case err == ErrInsufficientFunds:
		return uint32(vm.CallErrorCalleeReverted), nil
	case err == ErrMintGasLimit:
		return uint32(vm.CallErrorCalleeGasDepleted), nil
	default:
		return uint32(vm.CallErrorCalleeTrapped), nil
	}
}

// Emit publishes a message to a named topic of the callee.
func Emit(caller vm.Caller, topicPtr, topicSize, payloadPtr, payloadSize uint32) (uint32, *vm.VMError) {
	ctx := caller.Context()
	if err := chargeHostFunction(caller, ctx.Costs.Emit,
		uint64(topicPtr), uint64(topicSize), uint64(payloadPtr), uint64(payloadSize)); err != nil {
		return 0, err
	}
	if topicSize > types.MaxTopicNameSize {
		return types.HostErrorTopicTooLong, nil
	}
	if payloadSize > types.MaxMessagePayload {
		return types.HostErrorPayloadTooLong, nil
	}

	topicBytes, err := caller.MemoryRead(topicPtr, topicSize)
	if err != nil {
		return 0, asVMError(err)
	}
	if !utf8.Valid(topicBytes) {
		return types.HostErrorInvalidData, nil
	}
	topic := string(topicBytes)

	payload, err := caller.MemoryRead(payloadPtr, payloadSize)
	if err != nil {
		return 0, asVMError(err)
	}

	entity := ctx.CalleeAddr()
	messages := ctx.TrackingCopy.Messages()
	if len(messages) >= types.MaxMessagesPerBlock {
		return types.HostErrorMaxMessagesPerBlockExceeded, nil
	}
	topics := make(map[string]struct{})
	for _, m := range messages {
		if m.EntityAddr == entity {
			topics[m.Topic] = struct{}{}
		}
	}
	if _, known := topics[topic]; !known && len(topics) >= types.MaxTopicsPerEntity {
		return types.HostErrorTooManyTopics, nil
	}

	ctx.TrackingCopy.EmitMessage(types.Message{
		EntityAddr: entity,
		Topic:      topic,
		Payload:    payload,
		BlockIndex: uint64(len(messages)),
	})
	log.Debug(log.HostMonitoring, "message emitted", "topic", topic, "payload_len", len(payload))
	return types.HostErrorSuccess, nil
}

// nestedRequest assembles an execute request for a call that re-enters
// the executor on behalf of the current callee.
func nestedRequest(caller vm.Caller, kind vm.ExecutionKind, input []byte, value uint64) (vm.ExecuteRequest, *vm.VMError) {
	ctx := caller.Context()
	points := caller.GasConsumed()
	if points.Exhausted {
		return vm.ExecuteRequest{}, vm.OutOfGasError()
	}
	req, err := vm.NewExecuteRequestBuilder().
		WithInitiator(ctx.Initiator).
		WithCallerKey(ctx.Callee).
		WithGasLimit(points.Remaining).
		WithTarget(kind).
		WithInput(input).
		WithTransferredValue(value).
		WithTransactionHash(ctx.TransactionHash).
		WithSharedAddressGenerator(ctx.AddressGenerator).
		WithChainName(ctx.ChainName).
		WithBlockTime(ctx.BlockTime).
		WithStateHash(types.Digest{}).
		WithParentBlockHash(types.Digest{}).
		WithBlockHeight(0).
		Build()
	if err != nil {
		return vm.ExecuteRequest{}, vm.InternalError(err)
	}
	return req, nil
}

// Call invokes an entry point of a stored contract, forwarding value and
// input. The child executes against a fork; its effects merge only on
// success.
func Call(caller vm.Caller, addrPtr, addrLen, valuePtr, entryPointPtr, entryPointLen, inputPtr, inputLen, cbAlloc, cbCtx uint32) (uint32, *vm.VMError) {
	ctx := caller.Context()
	if err := chargeHostFunction(caller, ctx.Costs.Call,
		uint64(addrPtr), uint64(addrLen), uint64(valuePtr), uint64(entryPointPtr),
		uint64(entryPointLen), uint64(inputPtr), uint64(inputLen), uint64(cbAlloc), uint64(cbCtx)); err != nil {
		return 0, err
	}
	if addrLen != 32 {
		return uint32(vm.CallErrorNotCallable), nil
	}

	addrBytes, err := caller.MemoryRead(addrPtr, addrLen)
	if err != nil {
		return 0, asVMError(err)
	}
	var addr [32]byte
	copy(addr[:], addrBytes)

	entryPointBytes, err := caller.MemoryRead(entryPointPtr, entryPointLen)
	if err != nil {
		return 0, asVMError(err)
	}
	if !utf8.Valid(entryPointBytes) {
		log.Warn(log.HostMonitoring, "entry point name is not valid utf-8; unable to call")
		return uint32(vm.CallErrorNotCallable), nil
	}

	input, err := caller.MemoryRead(inputPtr, inputLen)
	if err != nil {
		return 0, asVMError(err)
	}

	valueBytes := make([]byte, 16)
	if err := caller.MemoryReadInto(valuePtr, valueBytes); err != nil {
		return 0, asVMError(err)
	}
	value, ok := leU128ToU64(valueBytes)
	if !ok {
		return types.HostErrorInvalidInput, nil
	}

	req, verr := nestedRequest(caller, vm.StoredContract(addr, string(entryPointBytes)), input, value)
	if verr != nil {
		return 0, verr
	}

	fork := ctx.TrackingCopy.Fork()
	res, err := ctx.Executor.Execute(context.Background(), fork, req)
	if err != nil {
		// The contract was validated when it was stored; failing to
		// prepare it now is not a guest-attributable outcome.
		return 0, vm.InternalError(err)
	}

	if res.Output != nil {
		outPtr, verr := allocOut(caller, cbAlloc, len(res.Output), cbCtx)
		if verr != nil {
			return 0, verr
		}
		if outPtr != 0 {
			if err := caller.MemoryWrite(outPtr, res.Output); err != nil {
				return 0, asVMError(err)
			}
		}
	}

	code := types.HostErrorSuccess
	if res.HostError != nil {
		code = uint32(*res.HostError)
	} else {
		ctx.TrackingCopy.ApplyChanges(res.Effects, res.Cache, res.Messages)
		ctx.Transfers = append(ctx.Transfers, res.Transfers...)
	}

	if points := caller.ConsumeGas(res.GasUsage.GasSpent()); points.Exhausted {
		return 0, vm.OutOfGasError()
	}
	return code, nil
}

// Create stores a new contract derived from the given (or the currently
// executing) bytecode and optionally runs a constructor entry point.
func Create(caller vm.Caller, codePtr, codeLen, valuePtr, entryPointPtr, entryPointLen, inputPtr, inputLen, seedPtr, seedLen, resultPtr uint32) (uint32, *vm.VMError) {
	ctx := caller.Context()
	if err := chargeHostFunction(caller, ctx.Costs.Create,
		uint64(codePtr), uint64(codeLen), uint64(valuePtr), uint64(entryPointPtr), uint64(entryPointLen),
		uint64(inputPtr), uint64(inputLen), uint64(seedPtr), uint64(seedLen), uint64(resultPtr)); err != nil {
		return 0, err
	}

	var code []byte
	if codePtr != 0 {
		var err error
		code, err = caller.MemoryRead(codePtr, codeLen)
		if err != nil {
			return 0, asVMError(err)
		}
	} else {
		code = caller.Bytecode()
	}

	valueBytes := make([]byte, 16)
	if err := caller.MemoryReadInto(valuePtr, valueBytes); err != nil {
		return 0, asVMError(err)
	}
	value, ok := leU128ToU64(valueBytes)
	if !ok {
		return types.HostErrorInvalidInput, nil
	}

	var seed *[32]byte
	if seedPtr != 0 {
		if seedLen != 32 {
			return uint32(vm.CallErrorNotCallable), nil
		}
		seedBytes, err := caller.MemoryRead(seedPtr, seedLen)
		if err != nil {
			return 0, asVMError(err)
		}
		var s [32]byte
		copy(s[:], seedBytes)
		seed = &s
	}

	var constructor string
	hasConstructor := false
	if entryPointPtr != 0 {
		entryPointBytes, err := caller.MemoryRead(entryPointPtr, entryPointLen)
		if err != nil {
			return 0, asVMError(err)
		}
		if !utf8.Valid(entryPointBytes) {
			log.Warn(log.HostMonitoring, "constructor name is not valid utf-8; unable to call")
			return uint32(vm.CallErrorNotCallable), nil
		}
		constructor = string(entryPointBytes)
		hasConstructor = true
	}

	var input []byte
	if inputPtr != 0 {
		var err error
		input, err = caller.MemoryRead(inputPtr, inputLen)
		if err != nil {
			return 0, asVMError(err)
		}
	}

	bytecodeHash := [32]byte(types.HashBytes(code))
	contractAddr := PredictableAddress(ctx.ChainName, ctx.CalleeAddr(), bytecodeHash, seed)

	existing, err := ctx.TrackingCopy.Read(types.HashKey(contractAddr))
	if err != nil {
		return 0, vm.InternalError(err)
	}
	if existing != nil {
		return uint32(vm.CallErrorNotCallable), nil
	}

	purse, err := MintMint(ctx.TrackingCopy, ctx.AddressGenerator, MintArgs{})
	if err != nil {
		return uint32(vm.CallErrorCalleeTrapped), nil
	}

	ctx.TrackingCopy.Write(types.Key{Tag: types.KeyTagHash, Address: bytecodeHash}, types.ContractWasmStoredValue(code))
	ctx.TrackingCopy.Write(types.HashKey(contractAddr), types.AccountStoredValue(types.Account{
		AccountHash: contractAddr,
		MainPurse:   purse,
		NamedKeys: map[string]types.Key{
			BytecodeNamedKey: {Tag: types.KeyTagHash, Address: bytecodeHash},
		},
	}))

	if hasConstructor {
		req, verr := nestedRequest(caller, vm.StoredContract(contractAddr, constructor), input, value)
		if verr != nil {
			return 0, verr
		}
		fork := ctx.TrackingCopy.Fork()
		res, err := ctx.Executor.Execute(context.Background(), fork, req)
		if err != nil {
			return 0, vm.InternalError(err)
		}
		if points := caller.ConsumeGas(res.GasUsage.GasSpent()); points.Exhausted {
			return 0, vm.OutOfGasError()
		}
		if res.HostError != nil {
			return uint32(*res.HostError), nil
		}
		ctx.TrackingCopy.ApplyChanges(res.Effects, res.Cache, res.Messages)
		ctx.Transfers = append(ctx.Transfers, res.Transfers...)
	}

	if err := caller.MemoryWrite(resultPtr, contractAddr[:]); err != nil {
		return 0, asVMError(err)
	}
	return types.HostErrorSuccess, nil
}

// Upgrade replaces the callee contract's bytecode in place, optionally
// running a migration entry point against the new code.
func Upgrade(caller vm.Caller, codePtr, codeSize, entryPointPtr, entryPointSize, inputPtr, inputSize uint32) (uint32, *vm.VMError) {
	ctx := caller.Context()
	if err := chargeHostFunction(caller, ctx.Costs.Upgrade,
		uint64(codePtr), uint64(codeSize), uint64(entryPointPtr), uint64(entryPointSize),
		uint64(inputPtr), uint64(inputSize)); err != nil {
		return 0, err
	}

	if ctx.Callee.Tag != types.KeyTagHash {
		log.Warn(log.HostMonitoring, "account upgrade is not possible")
		return uint32(vm.CallErrorNotCallable), nil
	}

	code, err := caller.MemoryRead(codePtr, codeSize)
	if err != nil {
		return 0, asVMError(err)
	}

	var entryPoint string
	hasEntryPoint := false
	if entryPointPtr != 0 {
		entryPointBytes, err := caller.MemoryRead(entryPointPtr, entryPointSize)
		if err != nil {
			return 0, asVMError(err)
		}
		if !utf8.Valid(entryPointBytes) {
			return uint32(vm.CallErrorNotCallable), nil
		}
		entryPoint = string(entryPointBytes)
		hasEntryPoint = true
	}

	var input []byte
	if inputPtr != 0 {
		if input, err = caller.MemoryRead(inputPtr, inputSize); err != nil {
			return 0, asVMError(err)
		}
	}

	footprint, err := ctx.TrackingCopy.Read(ctx.Callee)
	if err != nil {
		return 0, vm.InternalError(err)
	}
	if footprint == nil || footprint.Tag != types.StoredValueTagAccount || footprint.Account == nil {
		return uint32(vm.CallErrorNotCallable), nil
	}
	bytecodeKey, ok := footprint.Account.NamedKeys[BytecodeNamedKey]
	if !ok {
		return uint32(vm.CallErrorNotCallable), nil
	}

	// The bytecode key keeps its address; only the contents change.
	ctx.TrackingCopy.Write(bytecodeKey, types.ContractWasmStoredValue(code))

	if hasEntryPoint {
		// Migrations run with zero transferred value.
		req, verr := nestedRequest(caller, vm.StoredContract(ctx.CalleeAddr(), entryPoint), input, 0)
		if verr != nil {
			return 0, verr
		}
		fork := ctx.TrackingCopy.Fork()
		res, err := ctx.Executor.Execute(context.Background(), fork, req)
		if err != nil {
			log.Error(log.HostMonitoring, "wasm preparation error while performing upgrade", "err", err)
			return uint32(vm.CallErrorNotCallable), nil
		}
		if points := caller.ConsumeGas(res.GasUsage.GasSpent()); points.Exhausted {
			return 0, vm.OutOfGasError()
		}
		if res.HostError != nil {
			return uint32(*res.HostError), nil
		}
		ctx.TrackingCopy.ApplyChanges(res.Effects, res.Cache, res.Messages)
		ctx.Transfers = append(ctx.Transfers, res.Transfers...)
		if res.Output != nil {
			log.Info(log.HostMonitoring, "unexpected output from migration entry point", "entry_point", entryPoint)
		}
	}

	return types.HostErrorSuccess, nil
}
