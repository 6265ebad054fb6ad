package wazerovm

import (
	"context"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/host"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/vm"
)

const interfaceVersionPrefix = "casper_interface_version_"

// abort unwinds the guest through the wazero panic channel. The VMError
// is recovered from the error chain of the failed export call.
func abort(err *vm.VMError) {
	panic(err)
}

// hostResult converts a host function outcome into the value handed back
// to the guest, unwinding on errors that end execution.
func hostResult(code uint32, err *vm.VMError) uint32 {
	if err != nil {
		abort(err)
	}
	return code
}

// scanInterfaceVersions collects ABI version markers the module imports
// from the host and reports the highest one. Zero means the module
// declares no version.
func scanInterfaceVersions(m *rawModule) ([]uint32, vm.InterfaceVersion, error) {
	data := m.section(secImport)
	if data == nil {
		return nil, 0, nil
	}
	r := newReader(data)
	count, err := r.readU32()
	if err != nil {
		return nil, 0, err
	}
	var versions []uint32
	var max vm.InterfaceVersion
	for i := uint32(0); i < count; i++ {
		module, err := r.readName()
		if err != nil {
			return nil, 0, err
		}
		name, err := r.readName()
		if err != nil {
			return nil, 0, err
		}
		kind, err := r.readByte()
		if err != nil {
			return nil, 0, err
		}
		switch kind {
		case importKindFunc:
			if _, err := r.readU32(); err != nil {
				return nil, 0, err
			}
		case importKindTable:
			if _, err := r.readByte(); err != nil {
				return nil, 0, err
			}
			if _, err := readLimits(r); err != nil {
				return nil, 0, err
			}
		case importKindMemory:
			if _, err := readLimits(r); err != nil {
				return nil, 0, err
			}
		case importKindGlobal:
			if _, err := r.readBytes(2); err != nil {
				return nil, 0, err
			}
		}
		if module != hostModuleName || !strings.HasPrefix(name, interfaceVersionPrefix) {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimPrefix(name, interfaceVersionPrefix), 10, 32)
		if err != nil {
			continue
		}
		versions = append(versions, uint32(n))
		if vm.InterfaceVersion(n) > max {
			max = vm.InterfaceVersion(n)
		}
	}
	return versions, max, nil
}

// instantiateEnv builds and instantiates the host module the guest links
// against: the metering import, the host function surface and any ABI
// version markers the guest expects.
func instantiateEnv(ctx context.Context, runtime wazero.Runtime, c *wazeroCaller, versions []uint32) error {
	b := runtime.NewHostModuleBuilder(hostModuleName)

	b.NewFunctionBuilder().
		WithFunc(func(_ context.Context, amount int64) {
			if points := c.meter.consume(uint64(amount)); points.Exhausted {
				abort(vm.OutOfGasError())
			}
		}).
		Export(gasFunctionName)

	b.NewFunctionBuilder().
		WithFunc(func(_ context.Context, keySpace uint64, keyPtr, keySize, valuePtr, valueSize uint32) uint32 {
			return hostResult(host.Write(c, keySpace, keyPtr, keySize, valuePtr, valueSize))
		}).
		Export("casper_write")

	b.NewFunctionBuilder().
		WithFunc(func(_ context.Context, keySpace uint64, keyPtr, keySize, infoPtr, cbAlloc, allocCtx uint32) uint32 {
			return hostResult(host.Read(c, keySpace, keyPtr, keySize, infoPtr, cbAlloc, allocCtx))
		}).
		Export("casper_read")

	b.NewFunctionBuilder().
		WithFunc(func(_ context.Context, keySpace uint64, keyPtr, keySize uint32) uint32 {
			return hostResult(host.Remove(c, keySpace, keyPtr, keySize))
		}).
		Export("casper_remove")

	b.NewFunctionBuilder().
		WithFunc(func(_ context.Context, cbAlloc, allocCtx uint32) uint32 {
			return hostResult(host.CopyInput(c, cbAlloc, allocCtx))
		}).
		Export("casper_copy_input")

	b.NewFunctionBuilder().
		WithFunc(func(_ context.Context, flags, dataPtr, dataLen uint32) {
			// Ret always ends the call, successfully or not.
			abort(host.Ret(c, flags, dataPtr, dataLen))
		}).
		Export("casper_return")

	b.NewFunctionBuilder().
		WithFunc(func(_ context.Context, msgPtr, msgSize uint32) {
			if err := host.Print(c, msgPtr, msgSize); err != nil {
				abort(err)
			}
		}).
		Export("casper_print")

	b.NewFunctionBuilder().
		WithFunc(func(_ context.Context, entityKind, addrPtr, addrLen, outputPtr uint32) uint32 {
			return hostResult(host.EnvBalance(c, entityKind, addrPtr, addrLen, outputPtr))
		}).
		Export("casper_env_balance")

	b.NewFunctionBuilder().
		WithFunc(func(_ context.Context, infoPtr, infoSize uint32) uint32 {
			return hostResult(host.EnvInfo(c, infoPtr, infoSize))
		}).
		Export("casper_env_info")

	b.NewFunctionBuilder().
		WithFunc(func(_ context.Context, addrPtr, addrLen, amountPtr uint32) uint32 {
			return hostResult(host.Transfer(c, addrPtr, addrLen, amountPtr))
		}).
		Export("casper_transfer")

	b.NewFunctionBuilder().
		WithFunc(func(_ context.Context, codePtr, codeLen, valuePtr, entryPointPtr, entryPointLen, inputPtr, inputLen, seedPtr, seedLen, resultPtr uint32) uint32 {
			return hostResult(host.Create(c, codePtr, codeLen, valuePtr, entryPointPtr, entryPointLen, inputPtr, inputLen, seedPtr, seedLen, resultPtr))
		}).
		Export("casper_create")

	b.NewFunctionBuilder().
		WithFunc(func(_ context.Context, addrPtr, addrLen, valuePtr, entryPointPtr, entryPointLen, inputPtr, inputLen, cbAlloc, cbCtx uint32) uint32 {
			return hostResult(host.Call(c, addrPtr, addrLen, valuePtr, entryPointPtr, entryPointLen, inputPtr, inputLen, cbAlloc, cbCtx))
		}).
		Export("casper_call")

	b.NewFunctionBuilder().
		WithFunc(func(_ context.Context, codePtr, codeSize, entryPointPtr, entryPointSize, inputPtr, inputSize uint32) uint32 {
			return hostResult(host.Upgrade(c, codePtr, codeSize, entryPointPtr, entryPointSize, inputPtr, inputSize))
		}).
		Export("casper_upgrade")

	b.NewFunctionBuilder().
		WithFunc(func(_ context.Context, topicPtr, topicSize, payloadPtr, payloadSize uint32) uint32 {
			return hostResult(host.Emit(c, topicPtr, topicSize, payloadPtr, payloadSize))
		}).
		Export("casper_emit")

	for _, v := range versions {
		b.NewFunctionBuilder().
			WithFunc(func(_ context.Context) {}).
			Export(interfaceVersionPrefix + strconv.FormatUint(uint64(v), 10))
	}

	_, err := b.Instantiate(ctx)
	return err
}
