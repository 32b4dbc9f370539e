package archive

var (
	ObjectName = objectName
	Encode     = encode
)
