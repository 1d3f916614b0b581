package margin

import (
	"testing"

	"github.com/stretchr/testify/require"

	"margind/core/types"
	"margind/native/oracle"
)

type mapLedger map[types.Address]uint64

func (m mapLedger) Balance(custodian types.Address) (uint64, bool) {
	balance, ok := m[custodian]
	return balance, ok
}

type mapTokens map[types.Address]*TokenConfig

func (m mapTokens) TokenConfig(airspace, mint types.Address) (*TokenConfig, bool) {
	cfg, ok := m[mint]
	if !ok || cfg.Airspace != airspace {
		return nil, false
	}
	return cfg, true
}

func testInvoker(airspace types.Address) (*Invoker, mapLedger, mapTokens) {
	ledger := mapLedger{}
	tokens := mapTokens{}
	return NewInvoker(ledger, tokens, nil), ledger, tokens
}

func noopCall(program types.Address) AdapterCall {
	return AdapterCall{Program: program, Execute: func(*Account) (*AdapterResult, error) {
		return nil, nil
	}}
}

func TestInvokeUnknownAdapter(t *testing.T) {
	airspace := testAddress(40)
	inv, _, _ := testInvoker(airspace)
	acc := NewAccount(airspace, testAddress(0), 0, 0)

	_, err := inv.Invoke(acc, noopCall(testAddress(99)), true, arbitraryTime)
	require.ErrorIs(t, err, ErrUnauthorizedInvocation)
}

func TestInvokeWrongAirspace(t *testing.T) {
	airspace := testAddress(40)
	program := testAddress(41)
	inv, _, _ := testInvoker(airspace)
	inv.RegisterAdapter(AdapterConfig{Airspace: testAddress(99), AdapterProgram: program})
	acc := NewAccount(airspace, testAddress(0), 0, 0)

	_, err := inv.Invoke(acc, noopCall(program), true, arbitraryTime)
	require.ErrorIs(t, err, ErrWrongAirspace)
}

func TestInvokeExternalReconciliation(t *testing.T) {
	airspace := testAddress(40)
	program := testAddress(41)
	mintA := testAddress(1)
	mintB := testAddress(2)

	inv, ledger, _ := testInvoker(airspace)
	inv.RegisterAdapter(AdapterConfig{Airspace: airspace, AdapterProgram: program})
	inv.AddKnownExternalProgram(program)

	acc := NewAccount(airspace, testAddress(0), 0, 0)
	for _, mint := range []types.Address{mintA, mintB} {
		_, err := acc.RegisterPosition(PositionConfig{
			Mint:      mint,
			Custodian: mint,
			Airspace:  airspace,
			Kind:      TokenCollateral,
		}, Approvals{Authority: true})
		require.NoError(t, err)
	}
	ledger[mintA] = 100
	ledger[mintB] = 50

	changes, err := inv.Invoke(acc, AdapterCall{
		Program: program,
		Execute: func(*Account) (*AdapterResult, error) {
			// The swap sells B for A.
			ledger[mintA] = 130
			ledger[mintB] = 10
			return nil, nil
		},
	}, true, arbitraryTime)
	require.NoError(t, err)

	require.ElementsMatch(t, []TokenBalanceChange{
		{Mint: mintA, Tokens: 30, Cause: CauseExternalIncrease},
		{Mint: mintB, Tokens: 40, Cause: CauseExternalDecrease},
	}, changes)

	// Balances were synced onto the positions.
	require.Equal(t, uint64(130), acc.GetPosition(mintA).Balance)
	require.Equal(t, uint64(10), acc.GetPosition(mintB).Balance)
}

func TestInvokeExternalMayNotReturnResults(t *testing.T) {
	airspace := testAddress(40)
	program := testAddress(41)
	inv, _, _ := testInvoker(airspace)
	inv.RegisterAdapter(AdapterConfig{Airspace: airspace, AdapterProgram: program})
	inv.AddKnownExternalProgram(program)
	inv.AddSafeReturnDataProgram(program)
	acc := NewAccount(airspace, testAddress(0), 0, 0)

	_, err := inv.Invoke(acc, AdapterCall{
		Program: program,
		Execute: func(*Account) (*AdapterResult, error) {
			return &AdapterResult{}, nil
		},
	}, true, arbitraryTime)
	require.ErrorIs(t, err, ErrIncorrectProgramReturnData)
}

func TestInvokeIgnoresUntrustedResults(t *testing.T) {
	airspace := testAddress(40)
	program := testAddress(41)
	mint := testAddress(1)
	inv, _, _ := testInvoker(airspace)
	inv.RegisterAdapter(AdapterConfig{Airspace: airspace, AdapterProgram: program})
	acc := NewAccount(airspace, testAddress(0), 0, 0)

	changes, err := inv.Invoke(acc, AdapterCall{
		Program: program,
		Execute: func(*Account) (*AdapterResult, error) {
			return &AdapterResult{PositionChanges: []MintChanges{{
				Mint:    mint,
				Changes: []PositionChange{{Kind: ChangeRegister, Custodian: mint}},
			}}}, nil
		},
	}, true, arbitraryTime)
	require.NoError(t, err)
	require.Empty(t, changes)
	require.False(t, acc.HasPosition(mint))
}

func TestInvokeAppliesPositionChanges(t *testing.T) {
	airspace := testAddress(40)
	program := testAddress(41)
	mint := testAddress(1)

	inv, ledger, tokens := testInvoker(airspace)
	inv.RegisterAdapter(AdapterConfig{Airspace: airspace, AdapterProgram: program})
	inv.AddSafeReturnDataProgram(program)

	tokens[mint] = &TokenConfig{
		Mint:           mint,
		UnderlyingMint: mint,
		Airspace:       airspace,
		Kind:           TokenAdapterCollateral,
		Decimals:       2,
		ValueModifier:  90,
		Admin:          TokenAdmin{Kind: AdminAdapter, Adapter: program},
		Version:        TokenConfigVersion,
	}
	ledger[mint] = 500

	acc := NewAccount(airspace, testAddress(0), 0, 0)

	// Register through the adapter result, then adjust price and flags.
	_, err := inv.Invoke(acc, AdapterCall{
		Program: program,
		Execute: func(*Account) (*AdapterResult, error) {
			return &AdapterResult{Program: program, PositionChanges: []MintChanges{{
				Mint: mint,
				Changes: []PositionChange{
					{Kind: ChangeRegister, Custodian: mint},
					{Kind: ChangePrice, Price: oracle.PriceChange{
						Value:       250,
						Twap:        250,
						Exponent:    -2,
						PublishTime: arbitraryTime,
					}},
					{Kind: ChangeFlags, Flags: PositionRequired, Set: true},
				},
			}}}, nil
		},
	}, true, arbitraryTime)
	require.NoError(t, err)

	position := acc.GetPosition(mint)
	require.NotNil(t, position)
	require.Equal(t, TokenAdapterCollateral, position.Kind)
	require.Equal(t, uint64(500), position.Balance)
	require.True(t, position.Price.Valid)
	require.Equal(t, int64(250), position.Price.Value)
	require.Equal(t, PositionRequired, position.Flags&PositionRequired)

	// Registering again is an error.
	_, err = inv.Invoke(acc, AdapterCall{
		Program: program,
		Execute: func(*Account) (*AdapterResult, error) {
			return &AdapterResult{Program: program, PositionChanges: []MintChanges{{
				Mint:    mint,
				Changes: []PositionChange{{Kind: ChangeRegister, Custodian: mint}},
			}}}, nil
		},
	}, true, arbitraryTime)
	require.ErrorIs(t, err, ErrPositionAlreadyRegistered)

	// A required position cannot be closed, even at zero balance.
	ledger[mint] = 0
	closeCall := AdapterCall{
		Program: program,
		Execute: func(*Account) (*AdapterResult, error) {
			return &AdapterResult{Program: program, PositionChanges: []MintChanges{{
				Mint:    mint,
				Changes: []PositionChange{{Kind: ChangeClose, Custodian: mint}},
			}}}, nil
		},
	}
	_, err = inv.Invoke(acc, closeCall, true, arbitraryTime)
	require.ErrorIs(t, err, ErrCloseRequiredPosition)

	// Clearing the flag allows closing.
	_, err = inv.Invoke(acc, AdapterCall{
		Program: program,
		Execute: func(*Account) (*AdapterResult, error) {
			return &AdapterResult{Program: program, PositionChanges: []MintChanges{{
				Mint:    mint,
				Changes: []PositionChange{{Kind: ChangeFlags, Flags: PositionRequired, Set: false}},
			}}}, nil
		},
	}, true, arbitraryTime)
	require.NoError(t, err)
	_, err = inv.Invoke(acc, closeCall, true, arbitraryTime)
	require.NoError(t, err)
	require.False(t, acc.HasPosition(mint))
}

func TestInvokeWrongAdapterForPosition(t *testing.T) {
	airspace := testAddress(40)
	owner := testAddress(41)
	intruder := testAddress(42)
	mint := testAddress(1)

	inv, _, _ := testInvoker(airspace)
	inv.RegisterAdapter(AdapterConfig{Airspace: airspace, AdapterProgram: owner})
	inv.RegisterAdapter(AdapterConfig{Airspace: airspace, AdapterProgram: intruder})
	inv.AddSafeReturnDataProgram(owner)
	inv.AddSafeReturnDataProgram(intruder)

	acc := NewAccount(airspace, testAddress(0), 0, 0)
	_, err := acc.RegisterPosition(PositionConfig{
		Mint:      mint,
		Custodian: mint,
		Airspace:  airspace,
		Adapter:   owner,
		Kind:      TokenAdapterCollateral,
	}, Approvals{Authority: true, Adapters: []types.Address{owner}})
	require.NoError(t, err)

	_, err = inv.Invoke(acc, AdapterCall{
		Program: intruder,
		Execute: func(*Account) (*AdapterResult, error) {
			return &AdapterResult{Program: intruder, PositionChanges: []MintChanges{{
				Mint:    mint,
				Changes: []PositionChange{{Kind: ChangeFlags, Flags: PositionPastDue, Set: true}},
			}}}, nil
		},
	}, true, arbitraryTime)
	require.ErrorIs(t, err, ErrInvalidPositionAdapter)
}

func TestInvokeAutoRegisterNeedsConfig(t *testing.T) {
	airspace := testAddress(40)
	program := testAddress(41)
	mint := testAddress(1)
	inv, _, _ := testInvoker(airspace)
	inv.RegisterAdapter(AdapterConfig{Airspace: airspace, AdapterProgram: program})
	inv.AddSafeReturnDataProgram(program)
	acc := NewAccount(airspace, testAddress(0), 0, 0)

	_, err := inv.Invoke(acc, AdapterCall{
		Program: program,
		Execute: func(*Account) (*AdapterResult, error) {
			return &AdapterResult{Program: program, PositionChanges: []MintChanges{{
				Mint:    mint,
				Changes: []PositionChange{{Kind: ChangeRegister, Custodian: mint}},
			}}}, nil
		},
	}, true, arbitraryTime)
	require.ErrorIs(t, err, ErrPositionNotRegisterable)
}

func TestInvokeResultMustNameProgram(t *testing.T) {
	airspace := testAddress(40)
	program := testAddress(41)
	inv, _, _ := testInvoker(airspace)
	inv.RegisterAdapter(AdapterConfig{Airspace: airspace, AdapterProgram: program})
	inv.AddSafeReturnDataProgram(program)
	acc := NewAccount(airspace, testAddress(0), 0, 0)

	// A trusted result without program attribution is rejected.
	_, err := inv.Invoke(acc, AdapterCall{
		Program: program,
		Execute: func(*Account) (*AdapterResult, error) {
			return &AdapterResult{}, nil
		},
	}, true, arbitraryTime)
	require.ErrorIs(t, err, ErrNoAdapterResult)

	// A result claiming to come from a different program is rejected.
	_, err = inv.Invoke(acc, AdapterCall{
		Program: program,
		Execute: func(*Account) (*AdapterResult, error) {
			return &AdapterResult{Program: testAddress(42)}, nil
		},
	}, true, arbitraryTime)
	require.ErrorIs(t, err, ErrWrongProgramAdapterResult)
}
