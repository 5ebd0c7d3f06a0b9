// Package constants provides shared constants for the settlement optimizer.
package constants

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatJSON emits the full results as JSON
	OutputFormatJSON = "json"
)

// Input mode constants
const (
	// InputModeRandom synthesizes a bundle from random parameters
	InputModeRandom = "random"

	// InputModeLedger derives bundles from a matched-trade ledger CSV
	InputModeLedger = "ledger"

	// InputModeOrders matches raw orders first and then derives bundles
	InputModeOrders = "orders"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"

	// EnvPrefix is the prefix for environment overrides (SETTLE_SOLVER_LAMBDA, ...)
	EnvPrefix = "SETTLE"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum request body size (1 MB)
	DefaultMaxUploadSizeBytes int64 = 1024 * 1024
)

// Solver defaults
const (
	// DefaultLambda weighs settled notional against settled count equally
	DefaultLambda = 0.5

	// DefaultNodeLimit caps the branch-and-bound search tree
	DefaultNodeLimit = 200000

	// DefaultIntegralityTolerance is how far from an integer a relaxed value may be
	DefaultIntegralityTolerance = 1e-6

	// DefaultHaircutRate is the collateral haircut applied by the haircut extension
	DefaultHaircutRate = 0.05

	// DefaultParallelism is the number of batches solved concurrently
	DefaultParallelism = 1
)

// Randomized generation defaults and ranges (inclusive)
const (
	DefaultRandomTransactions    = 40
	DefaultRandomCollateralLinks = 4
	DefaultRandomAccounts        = 6
	DefaultRandomSecurities      = 8

	FirstSecurityID = 101

	RandomCashMin        = 500
	RandomCashMax        = 1000
	RandomCreditExtraMin = 500
	RandomCreditExtraMax = 2000

	RandomPositionMin = 100
	RandomPositionMax = 1000

	RandomTxCashMin     = 100
	RandomTxCashMax     = 2000
	RandomTxWeightMin   = 0.5
	RandomTxWeightMax   = 2.0
	RandomTxQuantityMin = 10
	RandomTxQuantityMax = 100

	RandomLotMin       = 1
	RandomLotMax       = 3
	RandomValuationMin = 50
	RandomValuationMax = 200
	RandomQMinMin      = 1
	RandomQMinMax      = 3
	RandomQLimExtraMin = 1
	RandomQLimExtraMax = 4

	RandomAfterLinkProbability = 0.3
)

// Batch-derived generation constants
const (
	BatchCashFloor             = 25000
	BatchPositionFloor         = 10000
	BatchDefaultPosition       = 10000
	BatchDefaultPositionChance = 0.25
	BatchLinkChance            = 0.8
	BatchLinkSellShare         = 0.5
	BatchLotSize               = 500
	BatchValuationFactor       = 0.95
	BatchQMin                  = 500
	BatchAfterLinkChance       = 0.25
	BatchAfterLinkRowShare     = 0.05
	BatchAfterLinkMinRows      = 6
	MinTransactionWeight       = 1e-6
	DefaultBatchSize           = 200
	DefaultSettlementCurrency  = "USD"
)

// Regulatory extension constants
const (
	// ConcentrationShare limits pledged collateral to a share of bank equity capital
	ConcentrationShare = 0.15

	// MuniSingleIssuerShare limits one state/municipal issuer against required reserve
	MuniSingleIssuerShare = 0.02

	// MuniAggregateShare limits all state/municipal holdings against required reserve
	MuniAggregateShare = 0.10
)

// CurrencyTolerance is the tolerance for currency comparisons (1 cent)
const CurrencyTolerance = 0.01

// DecimalPlaces is the precision for currency rounding
const DecimalPlaces = 2
