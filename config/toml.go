package config

const BridgeConfigTemplate = `db_host = "{{ .DbHost }}"
db_port = {{ .DbPort }}
db_username = "{{ .DbUsername }}"
db_password = "{{ .DbPassword }}"
db_schema = "{{ .DbSchema }}"
in_memory = {{ .InMemory }}

leveldb_path = "{{ .LevelDbPath }}"
server_port = {{ .ServerPort }}
home_server_url = "{{ .HomeServerUrl }}"
metrics_port = {{ .MetricsPort }}

resend_limit = {{ .ResendLimit }}
deposit_error_limit = {{ .DepositErrorLimit }}
rollback_window = {{ .RollbackWindow }}

[chains]{{ range $k, $v := .Chains }}
	[chains.{{ $k }}]
	chain = "{{ $k }}"
	family = "{{ $v.Family }}"
	chain_id = {{ $v.ChainId }}
	block_time = {{ $v.BlockTime }}
	multisig_address = "{{ $v.MultisigAddress }}"
	native_symbol = "{{ $v.NativeSymbol }}"
	deposit_confirmations = {{ $v.DepositConfirmations }}
	withdraw_confirmations = {{ $v.WithdrawConfirmations }}
	rpcs = [{{ range $i, $rpc := $v.Rpcs }}{{ if $i }}, {{ end }}"{{ $rpc }}"{{ end }}]
{{ end }}
`
