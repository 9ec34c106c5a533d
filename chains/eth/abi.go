package eth

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	MethodCrossOut                  = "crossOut"
	MethodCreateOrSignWithdraw      = "createOrSignWithdraw"
	MethodCreateOrSignManagerChange = "createOrSignManagerChange"
	MethodCreateOrSignUpgrade       = "createOrSignUpgrade"
	MethodIsCompletedTx             = "isCompletedTx"
	MethodIfManager                 = "ifManager"

	EventCrossOutFunds            = "CrossOutFunds"
	EventTxWithdrawCompleted      = "TxWithdrawCompleted"
	EventTxManagerChangeCompleted = "TxManagerChangeCompleted"
	EventTxUpgradeCompleted       = "TxUpgradeCompleted"

	MethodDecimals  = "decimals"
	MethodBalanceOf = "balanceOf"
)

const multisigAbiJson = `[
	{"type":"function","name":"crossOut","stateMutability":"payable","inputs":[{"name":"to","type":"string"},{"name":"amount","type":"uint256"},{"name":"ERC20","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"createOrSignWithdraw","stateMutability":"nonpayable","inputs":[{"name":"txKey","type":"string"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"},{"name":"isERC20","type":"bool"},{"name":"ERC20","type":"address"},{"name":"signatures","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"createOrSignManagerChange","stateMutability":"nonpayable","inputs":[{"name":"txKey","type":"string"},{"name":"adds","type":"address[]"},{"name":"removes","type":"address[]"},{"name":"count","type":"uint8"},{"name":"signatures","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"createOrSignUpgrade","stateMutability":"nonpayable","inputs":[{"name":"txKey","type":"string"},{"name":"upgradeContract","type":"address"},{"name":"signatures","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"isCompletedTx","stateMutability":"view","inputs":[{"name":"txKey","type":"string"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"ifManager","stateMutability":"view","inputs":[{"name":"_manager","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"event","name":"CrossOutFunds","anonymous":false,"inputs":[{"indexed":false,"name":"from","type":"address"},{"indexed":false,"name":"to","type":"string"},{"indexed":false,"name":"amount","type":"uint256"},{"indexed":false,"name":"ERC20","type":"address"}]},
	{"type":"event","name":"TxWithdrawCompleted","anonymous":false,"inputs":[{"indexed":false,"name":"txKey","type":"string"}]},
	{"type":"event","name":"TxManagerChangeCompleted","anonymous":false,"inputs":[{"indexed":false,"name":"txKey","type":"string"}]},
	{"type":"event","name":"TxUpgradeCompleted","anonymous":false,"inputs":[{"indexed":false,"name":"txKey","type":"string"}]}
]`

const erc20AbiJson = `[
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	MultisigAbi abi.ABI
	Erc20Abi    abi.ABI
)

func init() {
	var err error
	MultisigAbi, err = abi.JSON(strings.NewReader(multisigAbiJson))
	if err != nil {
		panic(err)
	}

	Erc20Abi, err = abi.JSON(strings.NewReader(erc20AbiJson))
	if err != nil {
		panic(err)
	}
}
