package mono

// Offsets describes where the runtime keeps the fields that are walked.
// The layout depends on the exact runtime build embedded in the target, so
// it is data rather than code and can be overridden from the configuration
// file. Every value is a byte offset unless noted otherwise.
type Offsets struct {
	// MonoDomain
	DomainAssemblies uint32 `yaml:"domain-assemblies"`

	// GSList node of the domain assembly list.
	ListData uint32 `yaml:"list-data"`
	ListNext uint32 `yaml:"list-next"`

	// MonoAssembly
	AssemblyName  uint32 `yaml:"assembly-name"`
	AssemblyImage uint32 `yaml:"assembly-image"`

	// MonoImage and its MonoInternalHashTable of classes.
	ImageClassCache uint32 `yaml:"image-class-cache"`
	HashTableSize   uint32 `yaml:"hash-table-size"`
	HashTableTable  uint32 `yaml:"hash-table-table"`

	// MonoClass
	ClassElementClass   uint32 `yaml:"class-element-class"`
	ClassBitfields      uint32 `yaml:"class-bitfields"`
	ClassParent         uint32 `yaml:"class-parent"`
	ClassNestedIn       uint32 `yaml:"class-nested-in"`
	ClassName           uint32 `yaml:"class-name"`
	ClassNamespace      uint32 `yaml:"class-namespace"`
	ClassSizes          uint32 `yaml:"class-sizes"`
	ClassFieldCount     uint32 `yaml:"class-field-count"`
	ClassFields         uint32 `yaml:"class-fields"`
	ClassRuntimeInfo    uint32 `yaml:"class-runtime-info"`
	ClassByvalArg       uint32 `yaml:"class-byval-arg"`
	ClassNextClassCache uint32 `yaml:"class-next-class-cache"`

	// MonoClassField, FieldSize is the size of one array entry.
	FieldSize   uint32 `yaml:"field-size"`
	FieldType   uint32 `yaml:"field-type"`
	FieldName   uint32 `yaml:"field-name"`
	FieldParent uint32 `yaml:"field-parent"`
	FieldOffset uint32 `yaml:"field-offset"`

	// MonoClassRuntimeInfo and MonoVTable
	RuntimeInfoDomainVTables uint32 `yaml:"runtime-info-domain-vtables"`
	VTableData               uint32 `yaml:"vtable-data"`

	// MonoType
	TypeAttrs uint32 `yaml:"type-attrs"`

	// Managed object layout. ObjectHeaderSize is the size of MonoObject,
	// which value type field offsets include.
	ObjectHeaderSize uint32 `yaml:"object-header-size"`
	StringLength     uint32 `yaml:"string-length"`
	StringChars      uint32 `yaml:"string-chars"`
	ArrayLength      uint32 `yaml:"array-length"`
	ArrayData        uint32 `yaml:"array-data"`
}

// DefaultOffsets returns the layout of the 32-bit Unity player runtime
// (mono.dll, Unity 5.x).
func DefaultOffsets() Offsets {
	return Offsets{
		DomainAssemblies: 0x6c,

		ListData: 0x0,
		ListNext: 0x4,

		AssemblyName:  0x8,
		AssemblyImage: 0x40,

		ImageClassCache: 0x2a0,
		HashTableSize:   0xc,
		HashTableTable:  0x14,

		ClassElementClass:   0x0,
		ClassBitfields:      0x14,
		ClassParent:         0x20,
		ClassNestedIn:       0x24,
		ClassName:           0x2c,
		ClassNamespace:      0x30,
		ClassSizes:          0x5c,
		ClassFieldCount:     0x64,
		ClassFields:         0x74,
		ClassRuntimeInfo:    0x7c,
		ClassByvalArg:       0x88,
		ClassNextClassCache: 0xa8,

		FieldSize:   0x10,
		FieldType:   0x0,
		FieldName:   0x4,
		FieldParent: 0x8,
		FieldOffset: 0xc,

		RuntimeInfoDomainVTables: 0x4,
		VTableData:               0xc,

		TypeAttrs: 0x4,

		ObjectHeaderSize: 0x8,
		StringLength:     0x8,
		StringChars:      0xc,
		ArrayLength:      0xc,
		ArrayData:        0x10,
	}
}
