package types

import "fmt"

// StoredValueTag discriminates values held in global state.
type StoredValueTag uint8

const (
	StoredValueTagCLValue StoredValueTag = iota
	StoredValueTagAccount
	StoredValueTagContractWasm
	StoredValueTagRegistry
	StoredValueTagUnit
)

// CLValue is an opaque typed value: raw serialized bytes plus a type tag
// understood by callers. The engine treats the bytes as a byte-exact
// contract.
type CLValue struct {
	TypeTag uint8
	Bytes   []byte
}

// Account is the minimal account footprint the engine needs.
type Account struct {
	AccountHash [32]byte
	MainPurse   [32]byte
	NamedKeys   map[string]Key
}

// StoredValue is the tagged union persisted under a Key.
type StoredValue struct {
	Tag      StoredValueTag
	CLValue  *CLValue
	Account  *Account
	Wasm     []byte
	Registry map[string][32]byte
}

func CLValueStoredValue(typeTag uint8, raw []byte) StoredValue {
	return StoredValue{Tag: StoredValueTagCLValue, CLValue: &CLValue{TypeTag: typeTag, Bytes: raw}}
}

func AccountStoredValue(a Account) StoredValue {
	return StoredValue{Tag: StoredValueTagAccount, Account: &a}
}

func ContractWasmStoredValue(wasm []byte) StoredValue {
	return StoredValue{Tag: StoredValueTagContractWasm, Wasm: wasm}
}

func RegistryStoredValue(reg map[string][32]byte) StoredValue {
	return StoredValue{Tag: StoredValueTagRegistry, Registry: reg}
}

func UnitStoredValue() StoredValue {
	return StoredValue{Tag: StoredValueTagUnit}
}

// U512StoredValue wraps a balance amount as a CLValue.
func U512StoredValue(amount U512) StoredValue {
	return CLValueStoredValue(CLTypeU512, amount.Bytes())
}

// AsU512 interprets the stored value as a balance amount.
func (sv StoredValue) AsU512() (U512, error) {
	if sv.Tag != StoredValueTagCLValue || sv.CLValue == nil || sv.CLValue.TypeTag != CLTypeU512 {
		return U512{}, fmt.Errorf("stored value is not a u512")
	}
	return U512FromBytes(sv.CLValue.Bytes)
}

func (sv StoredValue) AsRegistry() (map[string][32]byte, error) {
	if sv.Tag != StoredValueTagRegistry || sv.Registry == nil {
		return nil, fmt.Errorf("stored value is not a registry")
	}
	return sv.Registry, nil
}

// CLValue type tags used by the engine.
const (
	CLTypeUnit  uint8 = 0
	CLTypeU64   uint8 = 5
	CLTypeU512  uint8 = 8
	CLTypeKey   uint8 = 11
	CLTypeAny   uint8 = 21
	CLTypeBytes uint8 = 15
)
