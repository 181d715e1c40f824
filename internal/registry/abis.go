package registry

// ABI fragments for every contract the console reads or writes.
const (
	ERC20ABI = `[
		{"name":"name","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	Multicall3ABI = `[
		{"name":"aggregate3","type":"function","stateMutability":"payable","inputs":[{"name":"calls","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"allowFailure","type":"bool"},{"name":"callData","type":"bytes"}]}],"outputs":[{"name":"returnData","type":"tuple[]","components":[{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}]}]}
	]`

	MangroveVaultABI = `[
		{"name":"name","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"name":"totalSupply","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"MGV","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"name":"kandel","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"name":"oracle","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"name":"owner","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"name":"feeData","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"performanceFee","type":"uint16"},{"name":"managementFee","type":"uint16"},{"name":"feeRecipient","type":"address"}]},
		{"name":"tickIndex0","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"int24"}]},
		{"name":"kandelTickOffset","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"kandelParams","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"params","type":"tuple","components":[{"name":"gasprice","type":"uint32"},{"name":"gasreq","type":"uint24"},{"name":"stepSize","type":"uint32"},{"name":"pricePoints","type":"uint32"}]}]},
		{"name":"fundsState","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"name":"getKandelBalances","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"baseAmount","type":"uint256"},{"name":"quoteAmount","type":"uint256"}]},
		{"name":"getVaultBalances","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"baseAmount","type":"uint256"},{"name":"quoteAmount","type":"uint256"}]},
		{"name":"market","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"base","type":"address"},{"name":"quote","type":"address"},{"name":"tickSpacing","type":"uint256"}]},
		{"name":"getMintAmounts","type":"function","stateMutability":"view","inputs":[{"name":"baseAmountMax","type":"uint256"},{"name":"quoteAmountMax","type":"uint256"}],"outputs":[{"name":"baseAmountOut","type":"uint256"},{"name":"quoteAmountOut","type":"uint256"},{"name":"shares","type":"uint256"}]},
		{"name":"allowedSwapContracts","type":"function","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"mint","type":"function","stateMutability":"nonpayable","inputs":[{"name":"mintAmount","type":"uint256"},{"name":"baseAmountMax","type":"uint256"},{"name":"quoteAmountMax","type":"uint256"}],"outputs":[{"name":"shares","type":"uint256"},{"name":"baseAmount","type":"uint256"},{"name":"quoteAmount","type":"uint256"}]},
		{"name":"burn","type":"function","stateMutability":"nonpayable","inputs":[{"name":"shares","type":"uint256"},{"name":"minAmountBaseOut","type":"uint256"},{"name":"minAmountQuoteOut","type":"uint256"}],"outputs":[{"name":"amountBaseOut","type":"uint256"},{"name":"amountQuoteOut","type":"uint256"}]},
		{"name":"setPosition","type":"function","stateMutability":"nonpayable","inputs":[{"name":"position","type":"tuple","components":[{"name":"tickIndex0","type":"int256"},{"name":"tickOffset","type":"uint256"},{"name":"params","type":"tuple","components":[{"name":"gasprice","type":"uint32"},{"name":"gasreq","type":"uint24"},{"name":"stepSize","type":"uint32"},{"name":"pricePoints","type":"uint32"}]},{"name":"fundsState","type":"uint8"}]}],"outputs":[]},
		{"name":"setFeeData","type":"function","stateMutability":"nonpayable","inputs":[{"name":"performanceFee","type":"uint16"},{"name":"managementFee","type":"uint16"},{"name":"feeRecipient","type":"address"}],"outputs":[]},
		{"name":"setManager","type":"function","stateMutability":"nonpayable","inputs":[{"name":"manager","type":"address"}],"outputs":[]},
		{"name":"transferOwnership","type":"function","stateMutability":"nonpayable","inputs":[{"name":"newOwner","type":"address"}],"outputs":[]},
		{"name":"allowSwapContract","type":"function","stateMutability":"nonpayable","inputs":[{"name":"contractAddress","type":"address"}],"outputs":[]},
		{"name":"disallowSwapContract","type":"function","stateMutability":"nonpayable","inputs":[{"name":"contractAddress","type":"address"}],"outputs":[]},
		{"name":"swap","type":"function","stateMutability":"nonpayable","inputs":[{"name":"target","type":"address"},{"name":"data","type":"bytes"},{"name":"amountOut","type":"uint256"},{"name":"amountInMin","type":"uint256"},{"name":"sell","type":"bool"}],"outputs":[]},
		{"name":"updatePosition","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[]},
		{"name":"fundMangrove","type":"function","stateMutability":"payable","inputs":[],"outputs":[]},
		{"name":"withdrawFromMangrove","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"},{"name":"receiver","type":"address"}],"outputs":[]}
	]`

	// ERC4626VaultABI holds the extra accessors of vaults that park idle
	// funds in ERC-4626 vaults.
	ERC4626VaultABI = `[
		{"name":"currentVaults","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"baseVault","type":"address"},{"name":"quoteVault","type":"address"}]},
		{"name":"setVaultForToken","type":"function","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"vault","type":"address"},{"name":"minAssetsOut","type":"uint256"},{"name":"minSharesOut","type":"uint256"}],"outputs":[]}
	]`

	VaultFactoryABI = `[
		{"name":"createVault","type":"function","stateMutability":"nonpayable","inputs":[{"name":"_seeder","type":"address"},{"name":"_BASE","type":"address"},{"name":"_QUOTE","type":"address"},{"name":"_tickSpacing","type":"uint256"},{"name":"_decimals","type":"uint8"},{"name":"name","type":"string"},{"name":"symbol","type":"string"},{"name":"_oracle","type":"address"},{"name":"_owner","type":"address"}],"outputs":[{"name":"vault","type":"address"}]}
	]`

	MintHelperABI = `[
		{"name":"mint","type":"function","stateMutability":"nonpayable","inputs":[{"name":"vault","type":"address"},{"name":"maxBaseAmount","type":"uint256"},{"name":"maxQuoteAmount","type":"uint256"},{"name":"minSharesOut","type":"uint256"}],"outputs":[{"name":"mintAmount","type":"uint256"},{"name":"baseAmount","type":"uint256"},{"name":"quoteAmount","type":"uint256"}]},
		{"name":"withdrawTokens","type":"function","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"},{"name":"to","type":"address"}],"outputs":[]}
	]`

	KandelABI = `[
		{"name":"offerIdOfIndex","type":"function","stateMutability":"view","inputs":[{"name":"ba","type":"uint8"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"getOffer","type":"function","stateMutability":"view","inputs":[{"name":"ba","type":"uint8"},{"name":"index","type":"uint256"}],"outputs":[{"name":"offer","type":"uint256"}]}
	]`

	MangroveABI = `[
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"maker","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
	]`

	OracleABI = `[
		{"name":"tick","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"int256"}]}
	]`

	ChainlinkV1FactoryABI = `[
		{"name":"create","type":"function","stateMutability":"nonpayable","inputs":[` + chainlinkFeedsInputs + `,{"name":"salt","type":"bytes32"}],"outputs":[{"name":"oracle","type":"address"}]},
		{"name":"isOracle","type":"function","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	ChainlinkV2FactoryABI = `[
		{"name":"create","type":"function","stateMutability":"nonpayable","inputs":[` + chainlinkFeedsInputs + `,` + vaultFeedInputs + `,{"name":"salt","type":"bytes32"}],"outputs":[{"name":"oracle","type":"address"}]},
		{"name":"computeOracleAddress","type":"function","stateMutability":"view","inputs":[` + chainlinkFeedsInputs + `,` + vaultFeedInputs + `,{"name":"salt","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
		{"name":"isOracle","type":"function","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	DiaV1FactoryABI = `[
		{"name":"create","type":"function","stateMutability":"nonpayable","inputs":[` + diaFeedsInputs + `,` + vaultFeedInputs + `,{"name":"salt","type":"bytes32"}],"outputs":[{"name":"oracle","type":"address"}]},
		{"name":"computeOracleAddress","type":"function","stateMutability":"view","inputs":[` + diaFeedsInputs + `,` + vaultFeedInputs + `,{"name":"salt","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
		{"name":"isOracle","type":"function","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	CombinerV1FactoryABI = `[
		{"name":"create","type":"function","stateMutability":"nonpayable","inputs":[{"name":"oracle1","type":"address"},{"name":"oracle2","type":"address"},{"name":"oracle3","type":"address"},{"name":"oracle4","type":"address"},{"name":"salt","type":"bytes32"}],"outputs":[{"name":"oracle","type":"address"}]},
		{"name":"computeOracleAddress","type":"function","stateMutability":"view","inputs":[{"name":"oracle1","type":"address"},{"name":"oracle2","type":"address"},{"name":"oracle3","type":"address"},{"name":"oracle4","type":"address"},{"name":"salt","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
		{"name":"isOracle","type":"function","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
	]`
)

const (
	chainlinkFeedTuple = `"type":"tuple","components":[{"name":"feed","type":"address"},{"name":"baseDecimals","type":"uint256"},{"name":"quoteDecimals","type":"uint256"}]`
	chainlinkFeedsInputs = `{"name":"baseFeed1",` + chainlinkFeedTuple + `},{"name":"baseFeed2",` + chainlinkFeedTuple + `},{"name":"quoteFeed1",` + chainlinkFeedTuple + `},{"name":"quoteFeed2",` + chainlinkFeedTuple + `}`

	diaFeedTuple  = `"type":"tuple","components":[{"name":"oracle","type":"address"},{"name":"key","type":"bytes32"},{"name":"priceDecimals","type":"uint256"},{"name":"baseDecimals","type":"uint256"},{"name":"quoteDecimals","type":"uint256"}]`
	diaFeedsInputs = `{"name":"baseFeed1",` + diaFeedTuple + `},{"name":"baseFeed2",` + diaFeedTuple + `},{"name":"quoteFeed1",` + diaFeedTuple + `},{"name":"quoteFeed2",` + diaFeedTuple + `}`

	vaultFeedTuple  = `"type":"tuple","components":[{"name":"vault","type":"address"},{"name":"conversionSample","type":"uint256"}]`
	vaultFeedInputs = `{"name":"baseVault",` + vaultFeedTuple + `},{"name":"quoteVault",` + vaultFeedTuple + `}`
)
