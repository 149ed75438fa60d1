package sqlinline

// QDebitCredits atomically debits $2 credits when the balance covers it and
// records the ledger entry. No row is returned when funds are insufficient.
const QDebitCredits = `--sql 51ad894b-0b0c-4b12-90c1-2966b0362798
with debited as (
    update credit_accounts
    set balance = balance - $2::int,
        updated_at = now()
    where user_id = $1::text
      and balance >= $2::int
    returning user_id, balance
),
logged as (
    insert into credit_ledger(id, user_id, delta, reason, created_at)
    select gen_random_uuid(), user_id, -$2::int, $3::text, now()
    from debited
)
select balance from debited;
`

const QSelectCreditBalance = `--sql 292a9cb0-4bcc-46e7-991e-f608624fc2be
select balance
from credit_accounts
where user_id = $1::text
limit 1;
`

// QGrantCredits adds $2 credits (creating the account when needed).
const QGrantCredits = `--sql dd764602-862b-4168-a35f-7e58ba35dae4
with granted as (
    insert into credit_accounts(user_id, balance, created_at, updated_at)
    values ($1::text, $2::int, now(), now())
    on conflict (user_id) do update
    set balance = credit_accounts.balance + excluded.balance,
        updated_at = now()
    returning user_id, balance
),
logged as (
    insert into credit_ledger(id, user_id, delta, reason, created_at)
    select gen_random_uuid(), user_id, $2::int, $3::text, now()
    from granted
)
select balance from granted;
`

// QSetCredits overwrites the balance; used by operators only.
const QSetCredits = `--sql 7d173db7-b241-4731-9c20-61c1fab3ade0
insert into credit_accounts(user_id, balance, created_at, updated_at)
values ($1::text, $2::int, now(), now())
on conflict (user_id) do update
set balance = excluded.balance,
    updated_at = now()
returning balance;
`
