package signing

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
)

// weiDecimals 金额定标：1e18
var weiDecimals = new(big.Float).SetFloat64(1e18)

// OrderAmounts 限价单的定标金额
type OrderAmounts struct {
	PricePerShare *big.Int // 每 share 价格（wei）
	MakerAmount   *big.Int // BUY 单付出的保证金
	TakerAmount   *big.Int // BUY 单换回的 shares
}

// SignedOrderJSON 提交给交易所的已签名订单。
// 数值字段按 API 要求编码成字符串，side/signatureType 保持整数。
type SignedOrderJSON struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
	Hash          string `json:"hash"`
}

// Builder 订单构造与签名。
// maker 是 Predict Account（入金地址），signer 是控制它的钱包。
type Builder struct {
	privateKey *ecdsa.PrivateKey
	signerAddr common.Address
	maker      common.Address
	chainID    int64

	exchange             common.Address
	negRiskExchange      common.Address
	yieldBearingExchange common.Address
}

// BuilderOptions 构造参数。交易所合约地址按 (negRisk, yieldBearing) 选择，
// 未配置的变体回落到基础地址。
type BuilderOptions struct {
	PrivateKeyHex        string
	PredictAccount       string // 为空时 maker = signer（EOA 直挂）
	ChainID              int64
	Exchange             string
	NegRiskExchange      string
	YieldBearingExchange string
}

// NewBuilder 创建订单构造器
func NewBuilder(opts BuilderOptions) (*Builder, error) {
	if opts.PrivateKeyHex == "" {
		return nil, errors.New("缺少签名私钥")
	}
	key, err := crypto.HexToECDSA(opts.PrivateKeyHex)
	if err != nil {
		return nil, errors.Wrap(err, "解析私钥失败")
	}
	if opts.Exchange == "" {
		return nil, errors.New("缺少交易所合约地址")
	}
	if opts.ChainID == 0 {
		opts.ChainID = ChainIDBNBMainnet
	}

	signerAddr := crypto.PubkeyToAddress(key.PublicKey)
	maker := signerAddr
	if opts.PredictAccount != "" {
		maker = common.HexToAddress(opts.PredictAccount)
	}

	b := &Builder{
		privateKey: key,
		signerAddr: signerAddr,
		maker:      maker,
		chainID:    opts.ChainID,
		exchange:   common.HexToAddress(opts.Exchange),
	}
	b.negRiskExchange = b.exchange
	if opts.NegRiskExchange != "" {
		b.negRiskExchange = common.HexToAddress(opts.NegRiskExchange)
	}
	b.yieldBearingExchange = b.exchange
	if opts.YieldBearingExchange != "" {
		b.yieldBearingExchange = common.HexToAddress(opts.YieldBearingExchange)
	}
	return b, nil
}

// SignerAddress 签名钱包地址
func (b *Builder) SignerAddress() string { return b.signerAddr.Hex() }

// MakerAddress 订单 maker 地址
func (b *Builder) MakerAddress() string { return b.maker.Hex() }

// LimitOrderAmounts 计算 BUY 限价单的定标金额：
// makerAmount = price * shares（保证金），takerAmount = shares。
func LimitOrderAmounts(price, shares float64) OrderAmounts {
	priceWei := floatToWei(price)
	quantityWei := floatToWei(shares)

	maker := new(big.Int).Mul(priceWei, quantityWei)
	maker.Div(maker, big.NewInt(1e18))

	return OrderAmounts{
		PricePerShare: priceWei,
		MakerAmount:   maker,
		TakerAmount:   quantityWei,
	}
}

// SignLimitBuy 构建并签名一张 BUY 限价单，返回提交载荷和订单哈希。
func (b *Builder) SignLimitBuy(tokenID string, amounts OrderAmounts, feeRateBps int, isNegRisk, isYieldBearing bool) (json.RawMessage, string, error) {
	tokenIDBig, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return nil, "", errors.Errorf("非法的 tokenId: %s", tokenID)
	}

	salt, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 60))
	if err != nil {
		return nil, "", errors.Wrap(err, "生成 salt 失败")
	}

	sigType := SignatureTypeEOA
	if b.maker != b.signerAddr {
		sigType = SignatureTypePredictAccount
	}

	message := map[string]interface{}{
		"salt":          salt,
		"maker":         b.maker.Hex(),
		"signer":        b.signerAddr.Hex(),
		"taker":         common.Address{}.Hex(),
		"tokenId":       tokenIDBig,
		"makerAmount":   amounts.MakerAmount,
		"takerAmount":   amounts.TakerAmount,
		"expiration":    big.NewInt(0),
		"nonce":         big.NewInt(0),
		"feeRateBps":    big.NewInt(int64(feeRateBps)),
		"side":          big.NewInt(int64(SideBuy)),
		"signatureType": big.NewInt(int64(sigType)),
	}

	typedData := apitypes.TypedData{
		Types:       orderTypes,
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              ExchangeDomainName,
			Version:           ExchangeVersion,
			ChainId:           math.NewHexOrDecimal256(b.chainID),
			VerifyingContract: b.exchangeFor(isNegRisk, isYieldBearing).Hex(),
		},
		Message: message,
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, "", errors.Wrap(err, "计算 EIP712 哈希失败")
	}
	signature, err := crypto.Sign(hash, b.privateKey)
	if err != nil {
		return nil, "", errors.Wrap(err, "签名失败")
	}
	// crypto.Sign 的 v 是 0/1，链上校验要求 27/28
	signature[64] += 27

	hashHex := "0x" + common.Bytes2Hex(hash)
	order := SignedOrderJSON{
		Salt:          salt.String(),
		Maker:         b.maker.Hex(),
		Signer:        b.signerAddr.Hex(),
		Taker:         common.Address{}.Hex(),
		TokenID:       tokenIDBig.String(),
		MakerAmount:   amounts.MakerAmount.String(),
		TakerAmount:   amounts.TakerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    big.NewInt(int64(feeRateBps)).String(),
		Side:          int(SideBuy),
		SignatureType: int(sigType),
		Signature:     "0x" + common.Bytes2Hex(signature),
		Hash:          hashHex,
	}

	payload, err := json.Marshal(order)
	if err != nil {
		return nil, "", errors.Wrap(err, "编码订单失败")
	}
	return payload, hashHex, nil
}

// SignMessage 对登录消息做 EIP-191 个人签名（JWT 刷新用）
func (b *Builder) SignMessage(message string) (string, error) {
	hash := accounts.TextHash([]byte(message))
	signature, err := crypto.Sign(hash, b.privateKey)
	if err != nil {
		return "", errors.Wrap(err, "消息签名失败")
	}
	signature[64] += 27
	return "0x" + common.Bytes2Hex(signature), nil
}

func (b *Builder) exchangeFor(isNegRisk, isYieldBearing bool) common.Address {
	switch {
	case isNegRisk:
		return b.negRiskExchange
	case isYieldBearing:
		return b.yieldBearingExchange
	default:
		return b.exchange
	}
}

// floatToWei 浮点转 1e18 定标整数（截断）
func floatToWei(v float64) *big.Int {
	f := new(big.Float).SetFloat64(v)
	f.Mul(f, weiDecimals)
	out, _ := f.Int(nil)
	return out
}

var orderTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Order": {
		{Name: "salt", Type: "uint256"},
		{Name: "maker", Type: "address"},
		{Name: "signer", Type: "address"},
		{Name: "taker", Type: "address"},
		{Name: "tokenId", Type: "uint256"},
		{Name: "makerAmount", Type: "uint256"},
		{Name: "takerAmount", Type: "uint256"},
		{Name: "expiration", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "feeRateBps", Type: "uint256"},
		{Name: "side", Type: "uint8"},
		{Name: "signatureType", Type: "uint8"},
	},
}
