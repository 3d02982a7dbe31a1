package signing

// EIP712 域常量（predict.fun CTF 交易所）
const (
	ExchangeDomainName = "predict.fun CTF Exchange"
	ExchangeVersion    = "1"

	// ChainIDBNBMainnet 默认链：BNB 主网
	ChainIDBNBMainnet = 56
)

// Side 订单方向
type Side int

const (
	SideBuy  Side = 0
	SideSell Side = 1
)

// SignatureType 签名类型
type SignatureType int

const (
	SignatureTypeEOA            SignatureType = 0
	SignatureTypePredictAccount SignatureType = 2 // maker 是合约账户，signer 是其控制钱包
)
