package constants

const (
	// DefaultBootstrapGrant is credited once to a zero-balance submitter.
	DefaultBootstrapGrant int64 = 1000

	// DefaultRewardPercent is the share of the stake paid to the executing node.
	DefaultRewardPercent int64 = 80

	// DefaultStake is used when a submission does not name a stake.
	DefaultStake int64 = 100

	// DefaultTotalSteps is the number of simulated execution steps per job.
	DefaultTotalSteps = 10

	// LedgerGenesisPrevHash is hashed in place of the missing predecessor of the first block.
	LedgerGenesisPrevHash = "0"
)
