package vm

import "errors"

// Config parameterizes one sandbox instantiation.
type Config struct {
	// GasLimit is the initial fuel budget.
	GasLimit uint64
	// MemoryLimit is the maximum guest memory in WASM pages.
	MemoryLimit uint32
	// Input is the serialized arguments made available via copy_input.
	Input []byte
	// TransferredValue is the motes amount attached to the call.
	TransferredValue uint64
}

// ConfigBuilder assembles a Config, failing on unset required fields.
type ConfigBuilder struct {
	gasLimit         *uint64
	memoryLimit      *uint32
	input            []byte
	transferredValue *uint64
}

func NewConfigBuilder() *ConfigBuilder { return &ConfigBuilder{} }

func (b *ConfigBuilder) WithGasLimit(limit uint64) *ConfigBuilder {
	b.gasLimit = &limit
	return b
}

func (b *ConfigBuilder) WithMemoryLimit(pages uint32) *ConfigBuilder {
	b.memoryLimit = &pages
	return b
}

func (b *ConfigBuilder) WithInput(input []byte) *ConfigBuilder {
	b.input = input
	return b
}

func (b *ConfigBuilder) WithTransferredValue(value uint64) *ConfigBuilder {
	b.transferredValue = &value
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	if b.gasLimit == nil {
		return Config{}, errors.New("Required field gas_limit is not set")
	}
	if b.memoryLimit == nil {
		return Config{}, errors.New("Required field memory_limit is not set")
	}
	var transferred uint64
	if b.transferredValue != nil {
		transferred = *b.transferredValue
	}
	return Config{
		GasLimit:         *b.gasLimit,
		MemoryLimit:      *b.memoryLimit,
		Input:            b.input,
		TransferredValue: transferred,
	}, nil
}
